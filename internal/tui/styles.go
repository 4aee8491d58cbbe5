package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Prefix marks every line of user-facing output.
const Prefix = "🦀 "

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	messageStyle = lipgloss.NewStyle().Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	statusStyles = map[string]lipgloss.Style{
		"pending":    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		"installed":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"removed":    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"approved":   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"compiling":  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"incomplete": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"denied":     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"error":      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// Printf writes one prefixed line of user-facing output.
func Printf(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, Prefix+messageStyle.Render(fmt.Sprintf(format, args...)))
}
