package progression

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session authenticated identity, passed explicitly to the boundary
type Session struct {
	ID     uuid.UUID // unique per sign-in, distinguishes two sign-ins of the same user
	UserID string
	Name   string
	Token  string
}

// NewSession create a session with a fresh id
func NewSession(userID, name, token string) *Session {
	return &Session{
		ID:     uuid.New(),
		UserID: userID,
		Name:   name,
		Token:  token,
	}
}

// Boundary owns the current session and the store derived from it. The store is
// rebuilt from scratch on every identity change and the previous one is retired.
type Boundary struct {
	reconciler *Reconciler
	logger     *zap.Logger
	rebuilding atomic.Int32 // rebuilds in flight

	mu      sync.RWMutex
	session *Session
	store   *Store
}

// NewBoundary create a Boundary with an empty store, call Bootstrap or SignIn to load it
func NewBoundary(reconciler *Reconciler, logger *zap.Logger) *Boundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Boundary{
		reconciler: reconciler,
		logger:     logger,
		store:      NewStore(nil, nil),
	}
}

// Bootstrap load the anonymous state
func (b *Boundary) Bootstrap(ctx context.Context) error {
	return b.rebuild(ctx, nil)
}

// SignIn switch to session and rebuild the store
func (b *Boundary) SignIn(ctx context.Context, session *Session) error {
	return b.rebuild(ctx, session)
}

// SignOut drop the session and rebuild the anonymous state
func (b *Boundary) SignOut(ctx context.Context) error {
	return b.rebuild(ctx, nil)
}

func (b *Boundary) rebuild(ctx context.Context, session *Session) error {
	b.rebuilding.Add(1)
	defer b.rebuilding.Add(-1)

	b.mu.Lock()
	old := b.store
	b.session = session
	b.store = NewStore(nil, nil)
	b.mu.Unlock()
	old.retire()

	store, err := b.reconciler.Load(ctx, session)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != session {
		// another identity change won the race
		store.retire()
		return err
	}
	b.store = store
	if err != nil {
		b.logger.Error("Failed to bootstrap progression", zap.Error(err))
	}
	return err
}

// Session current session, nil when anonymous
func (b *Boundary) Session() *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Store current store, never nil
func (b *Boundary) Store() *Store {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store
}

// Loading true while any rebuild is still running
func (b *Boundary) Loading() bool {
	return b.rebuilding.Load() > 0
}

// Modules snapshot of the current store
func (b *Boundary) Modules() []*ModuleState {
	return b.Store().Modules()
}

// UnlockLesson complete a lesson in the current store
func (b *Boundary) UnlockLesson(ctx context.Context, moduleID, lessonIndex int) *Submission {
	return b.Store().CompleteLesson(ctx, moduleID, lessonIndex)
}

// IsModuleUnlocked .
func (b *Boundary) IsModuleUnlocked(moduleID int) bool {
	return b.Store().IsModuleUnlocked(moduleID)
}

// ModuleProgress .
func (b *Boundary) ModuleProgress(moduleID int) int {
	return b.Store().ModuleProgress(moduleID)
}

// TotalProgress .
func (b *Boundary) TotalProgress() int {
	return b.Store().TotalProgress()
}

// EnsureFirstLessonUnlocked .
func (b *Boundary) EnsureFirstLessonUnlocked(moduleID int) bool {
	return b.Store().EnsureFirstLessonUnlocked(moduleID)
}
