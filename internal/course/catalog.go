// Package course serves the static course structure and the lesson material files.
package course

import (
	"context"
	"fmt"
	"sync"

	"github.com/pot-code/course-progress/internal/progression"
	"github.com/spf13/viper"
	"go.elastic.co/apm"
)

// Catalog progression.Catalog over a course loaded once at startup
type Catalog struct {
	mu     sync.RWMutex
	course *progression.Course
}

var _ progression.Catalog = &Catalog{}

// NewCatalog create a Catalog serving course
func NewCatalog(course *progression.Course) *Catalog {
	return &Catalog{course: course}
}

// LoadCatalog read a course file (json, yaml or toml, by extension) and validate it
func LoadCatalog(path string) (*Catalog, error) {
	course, err := ReadCourseFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(course), nil
}

// ReadCourseFile parse the course file at path
func ReadCourseFile(path string) (*progression.Course, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read course file %s: %w", path, err)
	}

	course := new(progression.Course)
	if err := v.Unmarshal(course); err != nil {
		return nil, fmt.Errorf("failed to decode course file %s: %w", path, err)
	}
	if err := course.Validate(); err != nil {
		return nil, err
	}
	return course, nil
}

// FetchCourse implement progression.Catalog
func (c *Catalog) FetchCourse(ctx context.Context) (*progression.Course, error) {
	apmSpan, _ := apm.StartSpan(ctx, "Catalog.FetchCourse", "service")
	defer apmSpan.End()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.course, nil
}

// Reload swap in the course at path, the current course is kept on failure
func (c *Catalog) Reload(path string) error {
	course, err := ReadCourseFile(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.course = course
	c.mu.Unlock()
	return nil
}

// Lesson find a lesson and its module by lesson id
func (c *Catalog) Lesson(lessonID int) (progression.Lesson, progression.Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.course.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return l, m, true
			}
		}
	}
	return progression.Lesson{}, progression.Module{}, false
}
