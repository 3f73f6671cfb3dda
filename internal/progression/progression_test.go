package progression

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// twoByTwo course with 2 modules of 2 lessons each
func twoByTwo() *Course {
	return &Course{Modules: []Module{
		{ID: 1, Title: "Basics", Lessons: []Lesson{{ID: 11, Title: "Intro"}, {ID: 12, Title: "Setup"}}},
		{ID: 2, Title: "Advanced", Lessons: []Lesson{{ID: 21, Title: "Deep dive"}, {ID: 22, Title: "Wrap up"}}},
	}}
}

func threeModules() *Course {
	return &Course{Modules: []Module{
		{ID: 1, Lessons: []Lesson{{ID: 11}, {ID: 12}}},
		{ID: 2, Lessons: []Lesson{{ID: 21}, {ID: 22}, {ID: 23}}},
		{ID: 3, Lessons: []Lesson{{ID: 31}}},
	}}
}

type fakeCatalog struct {
	course *Course
	err    error
}

func (fc *fakeCatalog) FetchCourse(ctx context.Context) (*Course, error) {
	return fc.course, fc.err
}

type fakeRemote struct {
	mu        sync.Mutex
	items     []*LessonProgress
	fetchErrs []error // consumed one per FetchProgress call
	initErr   error
	submitErr error
	gate      chan struct{} // when set, SubmitCompletion waits for it

	fetchCalls int
	initCalls  int
	submitted  []int
}

func (fr *fakeRemote) FetchProgress(ctx context.Context, token string) ([]*LessonProgress, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.fetchCalls++
	if len(fr.fetchErrs) > 0 {
		err := fr.fetchErrs[0]
		fr.fetchErrs = fr.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return fr.items, nil
}

func (fr *fakeRemote) InitProgress(ctx context.Context, token string) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.initCalls++
	return fr.initErr
}

func (fr *fakeRemote) SubmitCompletion(ctx context.Context, token string, lessonID int) error {
	if fr.gate != nil {
		select {
		case <-fr.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.submitted = append(fr.submitted, lessonID)
	return fr.submitErr
}

func (fr *fakeRemote) submittedIDs() []int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return append([]int(nil), fr.submitted...)
}

var errBoom = errors.New("boom")

func waitSubmission(t *testing.T, sub *Submission) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sub.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("submission did not finish in time")
	}
	return err
}

func flags(modules []*ModuleState) map[int]Entry {
	result := make(map[int]Entry)
	for _, m := range modules {
		for _, l := range m.Lessons {
			result[l.ID] = Entry{Completed: l.Completed, Unlocked: l.Unlocked}
		}
	}
	return result
}
