package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pot-code/course-progress/internal/progression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mu        sync.Mutex
	completed []int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/api/v1/user/login":
		w.Write([]byte(`{"token":"tk","user":{"id":"u1","username":"ada"}}`))
	case "/api/v1/modules":
		w.Write([]byte(`{"modules":[{"id":1,"title":"Basics","lessons":[{"id":11,"title":"Intro"},{"id":12,"title":"Setup"}]},{"id":2,"title":"Advanced","lessons":[{"id":21,"title":"Deep dive"}]}]}`))
	case "/api/v1/progress":
		items := []*progression.LessonProgress{{LessonID: 11, Unlocked: true}}
		for _, id := range f.completed {
			items = append(items, &progression.LessonProgress{LessonID: id, Completed: true, Unlocked: true})
		}
		json.NewEncoder(w).Encode(items)
	case "/api/v1/progress/complete":
		var body struct {
			LessonID int `json:"lessonId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.completed = append(f.completed, body.LessonID)
		w.Write([]byte(`{"changed":true}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestConfig(t *testing.T, api http.Handler) *learnerConfig {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return &learnerConfig{APIURL: srv.URL + "/api/v1", Username: "ada", Password: "secret", LogLevel: "warn"}
}

func TestRun(t *testing.T) {
	api := &fakeAPI{}
	cfg := newTestConfig(t, api)
	ctx := context.Background()

	require.NoError(t, run(ctx, cfg, nil, zap.NewNop()))
	require.NoError(t, run(ctx, cfg, []string{"complete", "11"}, zap.NewNop()))
	assert.Equal(t, []int{11}, api.completed)

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"locked lesson", []string{"complete", "21"}, "lesson 21 is locked"},
		{"unknown lesson", []string{"complete", "99"}, "not part of the course"},
		{"bad lesson id", []string{"complete", "eleven"}, "invalid lesson id"},
		{"missing lesson id", []string{"complete"}, "usage"},
		{"unknown command", []string{"reset"}, "unknown command"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(ctx, cfg, tc.args, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
	assert.Equal(t, []int{11}, api.completed)
}

func TestRun_Anonymous(t *testing.T) {
	api := &fakeAPI{}
	cfg := newTestConfig(t, api)
	cfg.Username = ""

	require.NoError(t, run(context.Background(), cfg, []string{"complete", "11"}, zap.NewNop()))
	assert.Empty(t, api.completed)
}

func TestRenderStatus(t *testing.T) {
	modules := progression.Reconcile(
		&progression.Course{Modules: []progression.Module{
			{ID: 1, Title: "Basics", Lessons: []progression.Lesson{{ID: 11, Title: "Intro", Duration: "10 min"}, {ID: 12, Title: "Setup"}}},
			{ID: 2, Title: "Advanced", Lessons: []progression.Lesson{{ID: 21, Title: "Deep dive"}}},
		}},
		progression.Record{11: {Completed: true, Unlocked: true}, 12: {Unlocked: true}},
	)

	out := renderStatus("ada", modules, func(int) int { return 50 }, 33)
	for _, want := range []string{"ada  33% complete", "1. Basics", "50%", "[x]   11  Intro  (10 min)", "[ ]   12  Setup", "locked", "[-]   21  Deep dive"} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.Contains(renderStatus("", nil, nil, 0), "anonymous"))
	assert.Contains(t, renderError(errors.New("boom")), "error: boom")
}
