package tui

import "github.com/charmbracelet/lipgloss"

var (
	fgColor      = lipgloss.Color("15")
	accentColor  = lipgloss.Color("6")
	subtleColor  = lipgloss.Color("8")
	warningColor = lipgloss.Color("3")
	errorColor   = lipgloss.Color("1")
	successColor = lipgloss.Color("2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(subtleColor).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			PaddingLeft(2)

	rowSelectedStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Border(lipgloss.NormalBorder()).
				BorderForeground(accentColor).
				BorderLeft(true).
				BorderRight(false).
				BorderTop(false).
				BorderBottom(false).
				PaddingLeft(1)

	eventStyle = lipgloss.NewStyle().Foreground(subtleColor)

	helpStyle = lipgloss.NewStyle().Foreground(subtleColor)

	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	noticeStyle = lipgloss.NewStyle().Foreground(warningColor)

	stateStyles = map[string]lipgloss.Style{
		"running":        lipgloss.NewStyle().Foreground(successColor).Bold(true),
		"starting":       lipgloss.NewStyle().Foreground(warningColor).Bold(true),
		"process_exited": lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		"stopped":        lipgloss.NewStyle().Foreground(subtleColor).Bold(true),
	}
)

func stateStyle(state string) lipgloss.Style {
	if s, ok := stateStyles[state]; ok {
		return s
	}
	return lipgloss.NewStyle().Foreground(subtleColor)
}
