package progression

import (
	"context"
	"errors"
)

// ErrStaleSession remote reply arrived after the identity that issued it was replaced
var ErrStaleSession = errors.New("Session changed before the reply arrived")

// Submission remote half of a lesson completion. The local half is already
// applied when the Submission is handed out.
type Submission struct {
	LessonID int

	done chan struct{}
	err  error
}

func newSubmission(lessonID int) *Submission {
	return &Submission{LessonID: lessonID, done: make(chan struct{})}
}

func resolvedSubmission(lessonID int, err error) *Submission {
	s := newSubmission(lessonID)
	s.resolve(err)
	return s
}

func (s *Submission) resolve(err error) {
	s.err = err
	close(s.done)
}

// Done closed once the remote half finished
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Err remote outcome, only meaningful after Done is closed
func (s *Submission) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait block until the remote half finished or ctx is done
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
