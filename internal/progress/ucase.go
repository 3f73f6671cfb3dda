package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/progression"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ProgressUseCaseImpl applies completions with a session-less progression.Store, so the
// server unlocks exactly what the learner's own store unlocks.
type ProgressUseCaseImpl struct {
	Catalog  progression.Catalog
	Repo     ProgressRepository
	Cache    *RecordCache
	Notifier *Notifier
	Metrics  *metrics.Metrics // optional
}

var _ ProgressUseCase = &ProgressUseCaseImpl{}

// NewProgressUseCase ...
func NewProgressUseCase(
	Catalog progression.Catalog,
	Repo ProgressRepository,
	Cache *RecordCache,
	Notifier *Notifier,
	Metrics *metrics.Metrics,
) *ProgressUseCaseImpl {
	return &ProgressUseCaseImpl{
		Catalog:  Catalog,
		Repo:     Repo,
		Cache:    Cache,
		Notifier: Notifier,
		Metrics:  Metrics,
	}
}

// GetProgress progress record of userID in wire form
func (pu *ProgressUseCaseImpl) GetProgress(ctx context.Context, userID string) ([]*progression.LessonProgress, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetProgress", "service")
	defer apmSpan.End()

	record, err := pu.loadRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	return record.List(), nil
}

// InitProgress create the record of userID, first lesson of the first module unlocked.
// Returns false when the record already existed.
func (pu *ProgressUseCaseImpl) InitProgress(ctx context.Context, userID string) (bool, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.InitProgress", "service")
	defer apmSpan.End()

	course, err := pu.Catalog.FetchCourse(ctx)
	if err != nil {
		return false, err
	}

	var seed []*progression.LessonProgress
	for _, m := range progression.Fallback(course) {
		for _, l := range m.Lessons {
			if l.Unlocked {
				seed = append(seed, &progression.LessonProgress{LessonID: l.ID, Unlocked: true})
			}
		}
	}

	created, err := pu.Repo.InitRecord(ctx, userID, seed)
	if err != nil {
		pu.countInit("error")
		return false, err
	}
	if created {
		pu.countInit("created")
		logging.ExtractLoggerFromContext(ctx).Info("Progress record initialized", zap.String("user.id", userID))
	} else {
		pu.countInit("exists")
	}
	pu.invalidate(ctx, userID)
	return created, nil
}

// CompleteLesson complete lessonID for userID and persist every flag the completion changed
func (pu *ProgressUseCaseImpl) CompleteLesson(ctx context.Context, userID string, lessonID int) (*CompletionResult, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.CompleteLesson", "service")
	defer apmSpan.End()

	logger := logging.ExtractLoggerFromContext(ctx).With(zap.String("user.id", userID), zap.Int("lesson.id", lessonID))

	course, err := pu.Catalog.FetchCourse(ctx)
	if err != nil {
		pu.countCompletion("error")
		return nil, err
	}
	record, err := pu.loadRecord(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotInitialized) {
			pu.countCompletion("error")
		}
		return nil, err
	}

	store := progression.NewStore(progression.Reconcile(course, record), &progression.StoreConfig{Logger: logger})
	moduleID, index, ok := store.Locate(lessonID)
	if !ok {
		pu.countCompletion("not_found")
		return nil, ErrNoSuchLesson
	}
	lesson, _ := store.Lesson(moduleID, index)
	if lesson.Completed {
		pu.countCompletion("already_completed")
		return pu.result(store, lessonID, moduleID, false, nil), nil
	}
	if !lesson.Unlocked {
		pu.countCompletion("locked")
		return nil, ErrLessonLocked
	}

	before := unlockedModules(store.Modules())
	if sub := store.CompleteLesson(ctx, moduleID, index); sub == nil {
		// lost a race against the reconciled state, treat as locked
		pu.countCompletion("locked")
		return nil, ErrLessonLocked
	}

	changes := record.Diff(store.Record())
	if err := pu.Repo.SaveEntries(ctx, userID, changes); err != nil {
		pu.countCompletion("error")
		return nil, fmt.Errorf("save progress: %w", err)
	}
	pu.invalidate(ctx, userID)

	var unlocked *int
	for _, m := range store.Modules() {
		if m.Unlocked && !before[m.ID] {
			id := m.ID
			unlocked = &id
			break
		}
	}
	pu.countCompletion("completed")
	if unlocked != nil && pu.Metrics != nil {
		pu.Metrics.ModuleUnlocks.Inc()
	}

	res := pu.result(store, lessonID, moduleID, true, unlocked)
	if pu.Notifier != nil {
		n := pu.Notifier.Publish(userID, Event{
			LessonID:       lessonID,
			ModuleID:       moduleID,
			UnlockedModule: unlocked,
			TotalProgress:  res.TotalProgress,
		})
		logger.Debug("Completion published", zap.Int("feeds", n))
	}
	fields := []zap.Field{zap.Int("changes", len(changes))}
	if unlocked != nil {
		fields = append(fields, zap.Int("module.unlocked", *unlocked))
	}
	logger.Info("Lesson completed", fields...)
	return res, nil
}

// GetSummary per module and total progress of userID
func (pu *ProgressUseCaseImpl) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetSummary", "service")
	defer apmSpan.End()

	course, err := pu.Catalog.FetchCourse(ctx)
	if err != nil {
		return nil, err
	}
	record, err := pu.loadRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	store := progression.NewStore(progression.Reconcile(course, record), nil)
	modules := store.Modules()
	summary := &Summary{
		TotalProgress: store.TotalProgress(),
		Modules:       make([]*ModuleSummary, 0, len(modules)),
	}
	for _, m := range modules {
		summary.Modules = append(summary.Modules, &ModuleSummary{
			ID:       m.ID,
			Unlocked: m.Unlocked,
			Progress: store.ModuleProgress(m.ID),
		})
	}
	return summary, nil
}

func (pu *ProgressUseCaseImpl) loadRecord(ctx context.Context, userID string) (progression.Record, error) {
	logger := logging.ExtractLoggerFromContext(ctx)

	record, ok, err := pu.Cache.Get(userID)
	if err != nil {
		logger.Warn("Failed to read progress cache", zap.String("user.id", userID), zap.Error(err))
	}
	if ok {
		pu.countLookup("hit")
		return record, nil
	}
	if pu.Cache.enabled() {
		pu.countLookup("miss")
	}

	// taken before the read, a completion that lands meanwhile retires it
	gen, genErr := pu.Cache.Generation(userID)
	if genErr != nil {
		logger.Warn("Failed to read progress cache generation", zap.String("user.id", userID), zap.Error(genErr))
	}
	record, err = pu.Repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		if err := pu.Cache.Set(userID, gen, record); err != nil {
			logger.Warn("Failed to write progress cache", zap.String("user.id", userID), zap.Error(err))
		}
	}
	return record, nil
}

func (pu *ProgressUseCaseImpl) invalidate(ctx context.Context, userID string) {
	if err := pu.Cache.Invalidate(userID); err != nil {
		logging.ExtractLoggerFromContext(ctx).Warn("Failed to invalidate progress cache",
			zap.String("user.id", userID), zap.Error(err))
	}
}

func (pu *ProgressUseCaseImpl) result(store *progression.Store, lessonID, moduleID int, changed bool, unlocked *int) *CompletionResult {
	return &CompletionResult{
		LessonID:       lessonID,
		ModuleID:       moduleID,
		Changed:        changed,
		UnlockedModule: unlocked,
		TotalProgress:  store.TotalProgress(),
		Progress:       store.Record().List(),
	}
}

func (pu *ProgressUseCaseImpl) countCompletion(result string) {
	if pu.Metrics != nil {
		pu.Metrics.LessonCompletions.WithLabelValues(result).Inc()
	}
}

func (pu *ProgressUseCaseImpl) countInit(result string) {
	if pu.Metrics != nil {
		pu.Metrics.ProgressInits.WithLabelValues(result).Inc()
	}
}

func (pu *ProgressUseCaseImpl) countLookup(result string) {
	if pu.Metrics != nil {
		pu.Metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func unlockedModules(modules []*progression.ModuleState) map[int]bool {
	m := make(map[int]bool, len(modules))
	for _, ms := range modules {
		m[ms.ID] = ms.Unlocked
	}
	return m
}
