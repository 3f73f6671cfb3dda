package progression

import "sort"

// LessonState lesson with its runtime flags.
//
// Unlocked and Completed are caches kept consistent by Store operations only,
// new mutation paths must re-derive them rather than set them by hand.
type LessonState struct {
	Lesson
	Unlocked  bool `json:"unlocked"`
	Completed bool `json:"completed"`
}

// ModuleState module with its cached unlock flag
type ModuleState struct {
	ID          int            `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Unlocked    bool           `json:"unlocked"`
	Lessons     []*LessonState `json:"lessons"`
}

func newModuleState(m Module, unlocked bool) *ModuleState {
	return &ModuleState{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Unlocked:    unlocked,
		Lessons:     make([]*LessonState, 0, len(m.Lessons)),
	}
}

func (ms *ModuleState) clone() *ModuleState {
	c := *ms
	c.Lessons = make([]*LessonState, len(ms.Lessons))
	for i, l := range ms.Lessons {
		lc := *l
		c.Lessons[i] = &lc
	}
	return &c
}

func (ms *ModuleState) allCompleted() bool {
	for _, l := range ms.Lessons {
		if !l.Completed {
			return false
		}
	}
	return true
}

func (ms *ModuleState) completedCount() int {
	n := 0
	for _, l := range ms.Lessons {
		if l.Completed {
			n++
		}
	}
	return n
}

// Entry progress flags of a single lesson
type Entry struct {
	Completed bool
	Unlocked  bool
}

// Record remote progress record keyed by lesson id. A nil Record means
// the record is absent, an empty one means it exists but holds nothing.
type Record map[int]Entry

// LessonProgress wire form of a record entry
type LessonProgress struct {
	LessonID  int  `json:"lessonId" validate:"required"`
	Completed bool `json:"completed"`
	Unlocked  bool `json:"unlocked"`
}

// NewRecord build a record from its wire form, never returns nil
func NewRecord(items []*LessonProgress) Record {
	record := make(Record, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		record[item.LessonID] = Entry{Completed: item.Completed, Unlocked: item.Unlocked}
	}
	return record
}

// List wire form ordered by lesson id
func (r Record) List() []*LessonProgress {
	list := make([]*LessonProgress, 0, len(r))
	for id, e := range r {
		list = append(list, &LessonProgress{LessonID: id, Completed: e.Completed, Unlocked: e.Unlocked})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LessonID < list[j].LessonID })
	return list
}

// Diff entries of next that differ from r, a missing entry in r counts as locked
func (r Record) Diff(next Record) []*LessonProgress {
	changed := make(Record)
	for id, e := range next {
		if r[id] != e {
			changed[id] = e
		}
	}
	return changed.List()
}

func (r Record) allCompleted(lessons []Lesson) bool {
	for _, l := range lessons {
		if !r[l.ID].Completed {
			return false
		}
	}
	return true
}
