// Package progress persists learner progress records and applies lesson completions
// server side with the same rules the learner runs locally.
package progress

import (
	"context"
	"errors"

	"github.com/pot-code/course-progress/internal/progression"
)

// ErrNotInitialized the learner has no progress record yet
var ErrNotInitialized = progression.ErrNotInitialized

// ErrNoSuchLesson lesson id is not part of the course
var ErrNoSuchLesson = errors.New("No such lesson")

// ErrLessonLocked lesson can not be completed before it is unlocked
var ErrLessonLocked = errors.New("Lesson is locked")

// CompleteRequest body of a completion request
type CompleteRequest struct {
	LessonID int `json:"lessonId" validate:"required,min=1"`
}

// CompletionResult outcome of a completion request
type CompletionResult struct {
	LessonID       int                           `json:"lessonId"`
	ModuleID       int                           `json:"moduleId"`
	Changed        bool                          `json:"changed"`                  // false if the lesson was already completed
	UnlockedModule *int                          `json:"unlockedModule,omitempty"` // id of the module this completion unlocked
	TotalProgress  int                           `json:"totalProgress"`
	Progress       []*progression.LessonProgress `json:"progress"`
}

// ModuleSummary progress of one module
type ModuleSummary struct {
	ID       int  `json:"id"`
	Unlocked bool `json:"unlocked"`
	Progress int  `json:"progress"`
}

// Summary course progress overview
type Summary struct {
	TotalProgress int              `json:"totalProgress"`
	Modules       []*ModuleSummary `json:"modules"`
}

// Event pushed to the learner's live feed after a completion
type Event struct {
	LessonID       int  `json:"lessonId"`
	ModuleID       int  `json:"moduleId"`
	UnlockedModule *int `json:"unlockedModule,omitempty"`
	TotalProgress  int  `json:"totalProgress"`
}

// ProgressRepository progress record persistence. Writes only ever set flags, never clear them.
type ProgressRepository interface {
	// FindByUser returns ErrNotInitialized if InitRecord was never called for userID
	FindByUser(ctx context.Context, userID string) (progression.Record, error)
	// InitRecord create the record with seed entries, returns false if it already existed
	InitRecord(ctx context.Context, userID string, seed []*progression.LessonProgress) (bool, error)
	// SaveEntries merge entries into the record in one transaction
	SaveEntries(ctx context.Context, userID string, entries []*progression.LessonProgress) error
}

// ProgressUseCase progress operations
type ProgressUseCase interface {
	GetProgress(ctx context.Context, userID string) ([]*progression.LessonProgress, error)
	InitProgress(ctx context.Context, userID string) (bool, error)
	CompleteLesson(ctx context.Context, userID string, lessonID int) (*CompletionResult, error)
	GetSummary(ctx context.Context, userID string) (*Summary, error)
}
