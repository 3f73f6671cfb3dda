package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotInitialized the learner has no progress record yet
var ErrNotInitialized = errors.New("Progress record is not initialized")

// Catalog provides the static course structure
type Catalog interface {
	FetchCourse(ctx context.Context) (*Course, error)
}

// ProgressService remote owner of the progress record.
//
// FetchProgress must return an error wrapping ErrNotInitialized when the record
// does not exist yet. InitProgress and SubmitCompletion must be idempotent.
type ProgressService interface {
	FetchProgress(ctx context.Context, token string) ([]*LessonProgress, error)
	InitProgress(ctx context.Context, token string) error
	SubmitCompletion(ctx context.Context, token string, lessonID int) error
}

// Fallback deterministic state used without a usable record: first module
// and its first lesson unlocked, nothing completed.
func Fallback(course *Course) []*ModuleState {
	if course == nil {
		return []*ModuleState{}
	}
	modules := make([]*ModuleState, 0, len(course.Modules))
	for i, m := range course.Modules {
		ms := newModuleState(m, i == 0)
		for j, l := range m.Lessons {
			ms.Lessons = append(ms.Lessons, &LessonState{Lesson: l, Unlocked: i == 0 && j == 0})
		}
		modules = append(modules, ms)
	}
	return modules
}

// Reconcile merge record into course. A nil record yields Fallback.
//
// Modules are decided left to right, module i only looks at the lessons of module i-1.
func Reconcile(course *Course, record Record) []*ModuleState {
	if record == nil || course == nil {
		return Fallback(course)
	}
	modules := make([]*ModuleState, 0, len(course.Modules))
	for i, m := range course.Modules {
		unlocked := i == 0 || record.allCompleted(course.Modules[i-1].Lessons)
		ms := newModuleState(m, unlocked)
		for j, l := range m.Lessons {
			state := &LessonState{Lesson: l}
			if e, ok := record[l.ID]; ok {
				state.Completed = e.Completed
				state.Unlocked = e.Unlocked || e.Completed
			} else {
				state.Unlocked = unlocked && j == 0
			}
			ms.Lessons = append(ms.Lessons, state)
		}
		modules = append(modules, ms)
	}
	return modules
}

// ReconcilerConfig options for NewReconciler
type ReconcilerConfig struct {
	Logger        *zap.Logger
	SubmitTimeout time.Duration // deadline of each remote completion submitted by built stores
}

// Reconciler builds a Store from the catalog and the remote record, once per identity
type Reconciler struct {
	catalog Catalog
	remote  ProgressService
	logger  *zap.Logger
	timeout time.Duration
}

// NewReconciler create a Reconciler instance
func NewReconciler(catalog Catalog, remote ProgressService, cfg *ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		catalog: catalog,
		remote:  remote,
		logger:  zap.NewNop(),
		timeout: defaultSubmitTimeout,
	}
	if cfg != nil {
		if cfg.Logger != nil {
			r.logger = cfg.Logger
		}
		if cfg.SubmitTimeout > 0 {
			r.timeout = cfg.SubmitTimeout
		}
	}
	return r
}

// Load bootstrap a store for session, session may be nil for an anonymous learner.
//
// A catalog failure returns an empty store along with the error. Progress failures
// other than a missing record fall back to the deterministic state.
func (r *Reconciler) Load(ctx context.Context, session *Session) (*Store, error) {
	cfg := &StoreConfig{
		Session:       session,
		Remote:        r.remote,
		Logger:        r.logger,
		SubmitTimeout: r.timeout,
	}

	course, err := r.catalog.FetchCourse(ctx)
	if err != nil {
		return NewStore(nil, cfg), fmt.Errorf("fetch course: %w", err)
	}
	if session == nil {
		r.logger.Debug("No session, using fallback progress")
		return NewStore(Fallback(course), cfg), nil
	}

	record, err := r.fetchRecord(ctx, session)
	if err != nil {
		r.logger.Warn("Failed to load progress record, using fallback progress",
			zap.String("user.id", session.UserID),
			zap.Error(err),
		)
		return NewStore(Fallback(course), cfg), nil
	}
	return NewStore(Reconcile(course, record), cfg), nil
}

func (r *Reconciler) fetchRecord(ctx context.Context, session *Session) (Record, error) {
	items, err := r.remote.FetchProgress(ctx, session.Token)
	if errors.Is(err, ErrNotInitialized) {
		r.logger.Info("Initializing progress record", zap.String("user.id", session.UserID))
		if err := r.remote.InitProgress(ctx, session.Token); err != nil {
			return nil, fmt.Errorf("init progress: %w", err)
		}
		items, err = r.remote.FetchProgress(ctx, session.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch progress: %w", err)
	}
	return NewRecord(items), nil
}
