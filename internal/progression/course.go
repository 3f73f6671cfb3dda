// Package progression holds the lesson/module unlock rules: reconciling a remote progress
// record with the static course, and the store that applies lesson completions.
package progression

import (
	"errors"
	"fmt"
)

// ErrInvalidCourse course structure can not be used for progression
var ErrInvalidCourse = errors.New("Invalid course structure")

// Material downloadable file attached to a lesson
type Material struct {
	File  string `mapstructure:"file" json:"file" yaml:"file"`
	Title string `mapstructure:"title" json:"title" yaml:"title"`
	Type  string `mapstructure:"type" json:"type" yaml:"type"`
	Size  string `mapstructure:"size" json:"size,omitempty" yaml:"size"`
}

// Lesson static lesson definition
type Lesson struct {
	ID        int        `mapstructure:"id" json:"id" yaml:"id"`
	Title     string     `mapstructure:"title" json:"title" yaml:"title"`
	Content   string     `mapstructure:"content" json:"content" yaml:"content"`
	Video     string     `mapstructure:"video" json:"video,omitempty" yaml:"video"`
	Duration  string     `mapstructure:"duration" json:"duration,omitempty" yaml:"duration"`
	Materials []Material `mapstructure:"materials" json:"materials,omitempty" yaml:"materials"`
}

// Module static module definition, lesson order defines unlock precedence
type Module struct {
	ID          int      `mapstructure:"id" json:"id" yaml:"id"`
	Title       string   `mapstructure:"title" json:"title" yaml:"title"`
	Description string   `mapstructure:"description" json:"description" yaml:"description"`
	Lessons     []Lesson `mapstructure:"lessons" json:"lessons" yaml:"lessons"`
}

// Course ordered modules, read-only during a session
type Course struct {
	Modules []Module `mapstructure:"modules" json:"modules" yaml:"modules"`
}

// Validate check lesson ids are positive and ids are unique
func (c *Course) Validate() error {
	modules := make(map[int]struct{}, len(c.Modules))
	lessons := make(map[int]struct{})
	for _, m := range c.Modules {
		if _, ok := modules[m.ID]; ok {
			return fmt.Errorf("%w: duplicated module id %d", ErrInvalidCourse, m.ID)
		}
		modules[m.ID] = struct{}{}
		for _, l := range m.Lessons {
			if l.ID <= 0 {
				return fmt.Errorf("%w: lesson id %d of module %d is not positive", ErrInvalidCourse, l.ID, m.ID)
			}
			if _, ok := lessons[l.ID]; ok {
				return fmt.Errorf("%w: duplicated lesson id %d", ErrInvalidCourse, l.ID)
			}
			lessons[l.ID] = struct{}{}
		}
	}
	return nil
}

// LessonCount total number of lessons in the course
func (c *Course) LessonCount() int {
	n := 0
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}
