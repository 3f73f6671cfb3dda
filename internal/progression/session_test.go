package progression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	a := NewSession("u1", "Ann", "t1")
	b := NewSession("u1", "Ann", "t1")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "u1", a.UserID)
}

func TestBoundary_Lifecycle(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []*LessonProgress{
		{LessonID: 11, Completed: true, Unlocked: true},
		{LessonID: 12, Completed: true, Unlocked: true},
	}}
	b := NewBoundary(NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil), nil)

	assert.Empty(t, b.Modules())
	assert.Nil(t, b.Session())
	assert.False(t, b.Loading())

	require.NoError(t, b.Bootstrap(ctx))
	assert.Equal(t, Fallback(twoByTwo()), b.Modules())
	assert.Zero(t, remote.fetchCalls)

	session := NewSession("u1", "Ann", "token")
	require.NoError(t, b.SignIn(ctx, session))
	assert.Same(t, session, b.Session())
	assert.True(t, b.IsModuleUnlocked(2))
	assert.Equal(t, 50, b.TotalProgress())
	assert.Equal(t, 100, b.ModuleProgress(1))

	sub := b.UnlockLesson(ctx, 2, 0)
	require.NotNil(t, sub)
	require.NoError(t, waitSubmission(t, sub))
	assert.Equal(t, 75, b.TotalProgress())

	require.NoError(t, b.SignOut(ctx))
	assert.Nil(t, b.Session())
	assert.Equal(t, Fallback(twoByTwo()), b.Modules())
	assert.False(t, b.EnsureFirstLessonUnlocked(2))
}

func TestBoundary_StaleReplyAfterSignOut(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	remote := &fakeRemote{
		items: []*LessonProgress{{LessonID: 11, Completed: true, Unlocked: true}, {LessonID: 12, Unlocked: true}},
		gate:  gate,
	}
	b := NewBoundary(NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil), nil)
	require.NoError(t, b.SignIn(ctx, NewSession("u1", "Ann", "token")))

	old := b.Store()
	sub := b.UnlockLesson(ctx, 1, 1)
	require.NotNil(t, sub)

	require.NoError(t, b.SignOut(ctx))
	close(gate)
	assert.ErrorIs(t, waitSubmission(t, sub), ErrStaleSession)
	old.Wait()

	// neither the retired store nor the new anonymous one saw the cascade
	assert.False(t, old.IsModuleUnlocked(2))
	assert.False(t, b.IsModuleUnlocked(2))
	assert.Equal(t, Fallback(twoByTwo()), b.Modules())
}

func TestBoundary_CatalogFailure(t *testing.T) {
	b := NewBoundary(NewReconciler(&fakeCatalog{err: errBoom}, &fakeRemote{}, nil), nil)
	err := b.Bootstrap(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, b.Modules())
	assert.Equal(t, 0, b.TotalProgress())
}

// gatedCatalog holds every FetchCourse until release receives
type gatedCatalog struct {
	course  *Course
	entered chan struct{}
	release chan struct{}
}

func (gc *gatedCatalog) FetchCourse(ctx context.Context) (*Course, error) {
	gc.entered <- struct{}{}
	<-gc.release
	return gc.course, nil
}

func TestBoundary_LoadingOverlappingRebuilds(t *testing.T) {
	ctx := context.Background()
	catalog := &gatedCatalog{course: twoByTwo(), entered: make(chan struct{}), release: make(chan struct{})}
	b := NewBoundary(NewReconciler(catalog, &fakeRemote{}, nil), nil)

	done := make(chan error, 2)
	go func() { done <- b.SignIn(ctx, NewSession("u1", "Ann", "token")) }()
	<-catalog.entered
	go func() { done <- b.SignOut(ctx) }()
	<-catalog.entered
	assert.True(t, b.Loading())

	catalog.release <- struct{}{}
	require.NoError(t, <-done)
	assert.True(t, b.Loading(), "one rebuild is still running")

	catalog.release <- struct{}{}
	require.NoError(t, <-done)
	assert.False(t, b.Loading())
}
