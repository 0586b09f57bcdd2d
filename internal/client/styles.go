package client

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Underline(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	StatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)

	ProgressCompleteStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("36"))

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

const defaultBarWidth = 20

// RenderProgressBar draws percent as a bar of width cells. Values outside
// [0, 100] are drawn clamped; the number printed next to it is not.
func RenderProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = defaultBarWidth
	}

	filled := int(percent / 100 * float64(width))
	filled = max(0, min(filled, width))

	return ProgressCompleteStyle.Render(strings.Repeat("█", filled)) +
		ProgressEmptyStyle.Render(strings.Repeat("░", width-filled))
}
