package progression

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSubmitTimeout = 15 * time.Second

// StoreConfig options for NewStore
type StoreConfig struct {
	Session       *Session        // nil for an anonymous learner, completions stay local
	Remote        ProgressService // receives completions when Session is set
	Logger        *zap.Logger
	SubmitTimeout time.Duration
}

// Store in-memory progression state of one session.
//
// Lesson flags only move forward: locked -> unlocked -> completed.
type Store struct {
	mu      sync.RWMutex
	modules []*ModuleState
	retired bool

	session *Session
	remote  ProgressService
	logger  *zap.Logger
	timeout time.Duration
	pending sync.WaitGroup
}

// NewStore create a store owning modules
func NewStore(modules []*ModuleState, cfg *StoreConfig) *Store {
	if modules == nil {
		modules = []*ModuleState{}
	}
	s := &Store{
		modules: modules,
		logger:  zap.NewNop(),
		timeout: defaultSubmitTimeout,
	}
	if cfg != nil {
		s.session = cfg.Session
		s.remote = cfg.Remote
		if cfg.Logger != nil {
			s.logger = cfg.Logger
		}
		if cfg.SubmitTimeout > 0 {
			s.timeout = cfg.SubmitTimeout
		}
	}
	return s
}

// Session identity the store was built for, nil when anonymous
func (s *Store) Session() *Session {
	return s.session
}

// CompleteLesson mark the lesson at lessonIndex of module moduleID completed.
//
// The local change (lesson completed, next lesson unlocked) is applied before
// returning. The returned Submission tracks the remote half; with a session the
// next module is unlocked only once the remote accepted the completion, without
// one the module cascade runs immediately. Returns nil when the lesson is missing,
// locked or already completed.
func (s *Store) CompleteLesson(ctx context.Context, moduleID, lessonIndex int) *Submission {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return nil
	}
	mi := s.moduleIndex(moduleID)
	if mi < 0 {
		s.mu.Unlock()
		return nil
	}
	lessons := s.modules[mi].Lessons
	if lessonIndex < 0 || lessonIndex >= len(lessons) {
		s.mu.Unlock()
		return nil
	}
	target := lessons[lessonIndex]
	if !target.Unlocked || target.Completed {
		s.mu.Unlock()
		return nil
	}

	target.Completed = true
	target.Unlocked = true
	if next := lessonIndex + 1; next < len(lessons) && !lessons[next].Unlocked {
		lessons[next].Unlocked = true
	}
	lessonID := target.ID

	if s.session == nil || s.remote == nil {
		s.cascade(mi)
		s.mu.Unlock()
		return resolvedSubmission(lessonID, nil)
	}
	s.mu.Unlock()

	sub := newSubmission(lessonID)
	s.pending.Add(1)
	go s.submit(context.WithoutCancel(ctx), sub, moduleID)
	return sub
}

// UnlockLesson alias of CompleteLesson
func (s *Store) UnlockLesson(ctx context.Context, moduleID, lessonIndex int) *Submission {
	return s.CompleteLesson(ctx, moduleID, lessonIndex)
}

func (s *Store) submit(ctx context.Context, sub *Submission, moduleID int) {
	defer s.pending.Done()
	logger := s.logger.With(zap.Int("lesson.id", sub.LessonID), zap.String("session.id", s.session.ID.String()))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.remote.SubmitCompletion(ctx, s.session.Token, sub.LessonID); err != nil {
		// optimistic state is kept, the learner keeps the local progress
		logger.Warn("Failed to submit lesson completion", zap.Error(err))
		sub.resolve(fmt.Errorf("submit lesson %d: %w", sub.LessonID, err))
		return
	}

	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		logger.Debug("Discarding completion reply of a retired session")
		sub.resolve(ErrStaleSession)
		return
	}
	if mi := s.moduleIndex(moduleID); mi >= 0 && s.cascade(mi) {
		logger.Debug("Next module unlocked", zap.Int("module.id", moduleID))
	}
	s.mu.Unlock()
	sub.resolve(nil)
}

// cascade unlock the module after mi (and its first lesson) when every lesson of mi
// is completed. Modules without lessons are passed through. Caller holds the lock.
func (s *Store) cascade(mi int) bool {
	changed := false
	for ; mi+1 < len(s.modules); mi++ {
		current, next := s.modules[mi], s.modules[mi+1]
		if next.Unlocked || !current.allCompleted() {
			break
		}
		next.Unlocked = true
		if len(next.Lessons) > 0 {
			next.Lessons[0].Unlocked = true
		}
		changed = true
	}
	return changed
}

// EnsureFirstLessonUnlocked unlock the first lesson of an unlocked module that has no unlocked lesson
func (s *Store) EnsureFirstLessonUnlocked(moduleID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi := s.moduleIndex(moduleID)
	if mi < 0 || s.retired {
		return false
	}
	m := s.modules[mi]
	if !m.Unlocked || len(m.Lessons) == 0 {
		return false
	}
	for _, l := range m.Lessons {
		if l.Unlocked {
			return false
		}
	}
	m.Lessons[0].Unlocked = true
	s.logger.Debug("Forced first lesson unlocked", zap.Int("module.id", moduleID))
	return true
}

// IsModuleUnlocked false if the module does not exist
func (s *Store) IsModuleUnlocked(moduleID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mi := s.moduleIndex(moduleID); mi >= 0 {
		return s.modules[mi].Unlocked
	}
	return false
}

// ModuleProgress completed lessons of the module in percent
func (s *Store) ModuleProgress(moduleID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mi := s.moduleIndex(moduleID)
	if mi < 0 {
		return 0
	}
	m := s.modules[mi]
	return percent(m.completedCount(), len(m.Lessons))
}

// TotalProgress completed lessons of the course in percent
func (s *Store) TotalProgress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	done, total := 0, 0
	for _, m := range s.modules {
		done += m.completedCount()
		total += len(m.Lessons)
	}
	return percent(done, total)
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// Modules deep copy of the current state
func (s *Store) Modules() []*ModuleState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ModuleState, len(s.modules))
	for i, m := range s.modules {
		result[i] = m.clone()
	}
	return result
}

// Locate find the module id and index of a lesson
func (s *Store) Locate(lessonID int) (moduleID, lessonIndex int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.modules {
		for i, l := range m.Lessons {
			if l.ID == lessonID {
				return m.ID, i, true
			}
		}
	}
	return 0, 0, false
}

// Lesson copy of the lesson state at lessonIndex of module moduleID
func (s *Store) Lesson(moduleID, lessonIndex int) (LessonState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mi := s.moduleIndex(moduleID)
	if mi < 0 || lessonIndex < 0 || lessonIndex >= len(s.modules[mi].Lessons) {
		return LessonState{}, false
	}
	return *s.modules[mi].Lessons[lessonIndex], true
}

// Record current flags of every lesson
func (s *Store) Record() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := make(Record)
	for _, m := range s.modules {
		for _, l := range m.Lessons {
			record[l.ID] = Entry{Completed: l.Completed, Unlocked: l.Unlocked}
		}
	}
	return record
}

// Wait block until every in-flight submission finished
func (s *Store) Wait() {
	s.pending.Wait()
}

// retire detach the store from its session, later replies are discarded
func (s *Store) retire() {
	s.mu.Lock()
	s.retired = true
	s.mu.Unlock()
}

func (s *Store) moduleIndex(moduleID int) int {
	for i, m := range s.modules {
		if m.ID == moduleID {
			return i
		}
	}
	return -1
}
