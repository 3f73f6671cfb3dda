package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pot-code/course-progress/internal/progression"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("27")).
			Padding(0, 1)
	moduleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("51")).
			Padding(0, 1)
	lockedModuleStyle = moduleStyle.Copy().
				BorderForeground(lipgloss.Color("244"))
	titleStyle     = lipgloss.NewStyle().Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	openStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	lockedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// renderStatus whole course with per module progress
func renderStatus(name string, modules []*progression.ModuleState, moduleProgress func(int) int, total int) string {
	who := name
	if who == "" {
		who = "anonymous"
	}
	blocks := []string{headerStyle.Render(fmt.Sprintf("%s  %d%% complete", who, total))}
	for _, m := range modules {
		blocks = append(blocks, renderModule(m, moduleProgress(m.ID)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

func renderModule(m *progression.ModuleState, percent int) string {
	var b strings.Builder
	state := "locked"
	if m.Unlocked {
		state = fmt.Sprintf("%d%%", percent)
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d. %s", m.ID, m.Title)))
	b.WriteString("  " + lockedStyle.Render(state))
	for _, l := range m.Lessons {
		b.WriteString("\n")
		b.WriteString(renderLesson(l))
	}
	if m.Unlocked {
		return moduleStyle.Render(b.String())
	}
	return lockedModuleStyle.Render(b.String())
}

func renderLesson(l *progression.LessonState) string {
	line := fmt.Sprintf("%4d  %s", l.ID, l.Title)
	if l.Duration != "" {
		line += "  (" + l.Duration + ")"
	}
	switch {
	case l.Completed:
		return completedStyle.Render("[x] " + line)
	case l.Unlocked:
		return openStyle.Render("[ ] " + line)
	default:
		return lockedStyle.Render("[-] " + line)
	}
}

func renderError(err error) string {
	return errorStyle.Render("error: " + err.Error())
}
