package progression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallback(t *testing.T) {
	modules := Fallback(threeModules())

	unlockedModules, unlockedLessons := 0, 0
	for i, m := range modules {
		if m.Unlocked {
			unlockedModules++
			assert.Equal(t, 0, i)
		}
		for j, l := range m.Lessons {
			assert.False(t, l.Completed)
			if l.Unlocked {
				unlockedLessons++
				assert.Equal(t, 0, i)
				assert.Equal(t, 0, j)
			}
		}
	}
	assert.Equal(t, 1, unlockedModules)
	assert.Equal(t, 1, unlockedLessons)
}

func TestFallback_EmptyCourse(t *testing.T) {
	assert.Empty(t, Fallback(nil))
	assert.Empty(t, Fallback(&Course{}))
}

func TestReconcile_NilRecordIsFallback(t *testing.T) {
	course := twoByTwo()
	assert.Equal(t, Fallback(course), Reconcile(course, nil))
}

func TestReconcile(t *testing.T) {
	testCases := []struct {
		name            string
		record          Record
		modulesUnlocked []bool
		lessons         map[int]Entry
	}{
		{
			name:            "empty record opens first lesson only",
			record:          Record{},
			modulesUnlocked: []bool{true, false, false},
			lessons: map[int]Entry{
				11: {Unlocked: true}, 12: {}, 21: {}, 22: {}, 23: {}, 31: {},
			},
		},
		{
			name: "entries are copied verbatim",
			record: Record{
				11: {Completed: true, Unlocked: true},
				12: {Unlocked: true},
			},
			modulesUnlocked: []bool{true, false, false},
			lessons: map[int]Entry{
				11: {Completed: true, Unlocked: true}, 12: {Unlocked: true}, 21: {}, 22: {}, 23: {}, 31: {},
			},
		},
		{
			name: "completed previous module unlocks next module and defaults its first lesson",
			record: Record{
				11: {Completed: true, Unlocked: true},
				12: {Completed: true, Unlocked: true},
			},
			modulesUnlocked: []bool{true, true, false},
			lessons: map[int]Entry{
				11: {Completed: true, Unlocked: true}, 12: {Completed: true, Unlocked: true},
				21: {Unlocked: true}, 22: {}, 23: {}, 31: {},
			},
		},
		{
			name: "locked entry in an open module is kept",
			record: Record{
				11: {Completed: true, Unlocked: true},
				12: {Completed: true, Unlocked: true},
				21: {},
			},
			modulesUnlocked: []bool{true, true, false},
			lessons: map[int]Entry{
				11: {Completed: true, Unlocked: true}, 12: {Completed: true, Unlocked: true},
				21: {}, 22: {}, 23: {}, 31: {},
			},
		},
		{
			name: "module only depends on its direct predecessor",
			record: Record{
				21: {Completed: true, Unlocked: true},
				22: {Completed: true, Unlocked: true},
				23: {Completed: true, Unlocked: true},
			},
			modulesUnlocked: []bool{true, false, true},
			lessons: map[int]Entry{
				11: {Unlocked: true}, 12: {},
				21: {Completed: true, Unlocked: true}, 22: {Completed: true, Unlocked: true}, 23: {Completed: true, Unlocked: true},
				31: {Unlocked: true},
			},
		},
		{
			name:            "completed entry without unlocked flag is treated as unlocked",
			record:          Record{11: {Completed: true}},
			modulesUnlocked: []bool{true, false, false},
			lessons: map[int]Entry{
				11: {Completed: true, Unlocked: true}, 12: {}, 21: {}, 22: {}, 23: {}, 31: {},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			modules := Reconcile(threeModules(), tc.record)
			require.Len(t, modules, len(tc.modulesUnlocked))
			for i, m := range modules {
				assert.Equal(t, tc.modulesUnlocked[i], m.Unlocked, "module %d", m.ID)
			}
			assert.Equal(t, tc.lessons, flags(modules))
		})
	}
}

func TestReconcile_ModuleUnlockRule(t *testing.T) {
	course := threeModules()
	records := []Record{
		{},
		{11: {Completed: true, Unlocked: true}},
		{11: {Completed: true, Unlocked: true}, 12: {Completed: true, Unlocked: true}},
		{11: {Completed: true, Unlocked: true}, 12: {Completed: true, Unlocked: true},
			21: {Completed: true, Unlocked: true}, 22: {Completed: true, Unlocked: true}, 23: {Completed: true, Unlocked: true}},
	}
	for _, record := range records {
		modules := Reconcile(course, record)
		for i := 1; i < len(modules); i++ {
			assert.Equal(t, modules[i-1].allCompleted(), modules[i].Unlocked, "module %d", modules[i].ID)
		}
	}
}

func TestReconciler_Load(t *testing.T) {
	session := NewSession("u1", "Ann", "token")
	record := []*LessonProgress{
		{LessonID: 11, Completed: true, Unlocked: true},
		{LessonID: 12, Unlocked: true},
	}

	t.Run("catalog failure is fatal", func(t *testing.T) {
		r := NewReconciler(&fakeCatalog{err: errBoom}, &fakeRemote{}, nil)
		store, err := r.Load(context.Background(), session)
		assert.ErrorIs(t, err, errBoom)
		require.NotNil(t, store)
		assert.Empty(t, store.Modules())
	})

	t.Run("anonymous uses fallback without remote calls", func(t *testing.T) {
		remote := &fakeRemote{items: record}
		r := NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil)
		store, err := r.Load(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, Fallback(twoByTwo()), store.Modules())
		assert.Zero(t, remote.fetchCalls)
	})

	t.Run("record is reconciled", func(t *testing.T) {
		remote := &fakeRemote{items: record}
		r := NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil)
		store, err := r.Load(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, Reconcile(twoByTwo(), NewRecord(record)), store.Modules())
		assert.Same(t, session, store.Session())
	})

	t.Run("missing record is initialized then fetched again", func(t *testing.T) {
		remote := &fakeRemote{items: record, fetchErrs: []error{ErrNotInitialized}}
		r := NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil)
		store, err := r.Load(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, 1, remote.initCalls)
		assert.Equal(t, 2, remote.fetchCalls)
		assert.True(t, store.Record()[11].Completed)
	})

	t.Run("other fetch failure falls back", func(t *testing.T) {
		remote := &fakeRemote{items: record, fetchErrs: []error{errBoom}}
		r := NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil)
		store, err := r.Load(context.Background(), session)
		require.NoError(t, err)
		assert.Zero(t, remote.initCalls)
		assert.Equal(t, Fallback(twoByTwo()), store.Modules())
	})

	t.Run("init failure falls back", func(t *testing.T) {
		remote := &fakeRemote{items: record, fetchErrs: []error{ErrNotInitialized}, initErr: errBoom}
		r := NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil)
		store, err := r.Load(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, 1, remote.fetchCalls)
		assert.Equal(t, Fallback(twoByTwo()), store.Modules())
	})

	t.Run("retry is attempted once", func(t *testing.T) {
		remote := &fakeRemote{items: record, fetchErrs: []error{ErrNotInitialized, ErrNotInitialized}}
		r := NewReconciler(&fakeCatalog{course: twoByTwo()}, remote, nil)
		store, err := r.Load(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, 2, remote.fetchCalls)
		assert.Equal(t, Fallback(twoByTwo()), store.Modules())
	})
}

func TestRecord(t *testing.T) {
	record := NewRecord([]*LessonProgress{
		{LessonID: 3, Unlocked: true},
		nil,
		{LessonID: 1, Completed: true, Unlocked: true},
	})
	assert.Equal(t, []*LessonProgress{
		{LessonID: 1, Completed: true, Unlocked: true},
		{LessonID: 3, Unlocked: true},
	}, record.List())

	assert.NotNil(t, NewRecord(nil))

	next := Record{1: {Completed: true, Unlocked: true}, 3: {Completed: true, Unlocked: true}, 4: {Unlocked: true}, 5: {}}
	assert.Equal(t, []*LessonProgress{
		{LessonID: 3, Completed: true, Unlocked: true},
		{LessonID: 4, Unlocked: true},
	}, record.Diff(next))
}

func TestCourse_Validate(t *testing.T) {
	assert.NoError(t, threeModules().Validate())

	dupLesson := &Course{Modules: []Module{
		{ID: 1, Lessons: []Lesson{{ID: 1}}},
		{ID: 2, Lessons: []Lesson{{ID: 1}}},
	}}
	assert.ErrorIs(t, dupLesson.Validate(), ErrInvalidCourse)

	dupModule := &Course{Modules: []Module{{ID: 1}, {ID: 1}}}
	assert.ErrorIs(t, dupModule.Validate(), ErrInvalidCourse)

	zeroLesson := &Course{Modules: []Module{{ID: 1, Lessons: []Lesson{{ID: 0}}}}}
	assert.ErrorIs(t, zeroLesson.Validate(), ErrInvalidCourse)

	assert.Equal(t, 6, threeModules().LessonCount())
}
