package tui

import "github.com/charmbracelet/lipgloss"

var (
	teal      = lipgloss.Color("#2EC4B6")
	coral     = lipgloss.Color("#FF6B6B")
	amber     = lipgloss.Color("#FFB400")
	leaf      = lipgloss.Color("#6BCB77")
	slate     = lipgloss.Color("#9AA5B1")
	ink       = lipgloss.Color("#102A43")
	panelEdge = lipgloss.Color("#486581")

	headerStyle = lipgloss.NewStyle().
			Foreground(teal).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelEdge).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(teal).
			Foreground(ink).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(teal).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(amber)
	dimStyle   = lipgloss.NewStyle().Foreground(slate)
	helpStyle  = lipgloss.NewStyle().Foreground(slate).Padding(0, 1)
)

var levelColors = map[string]lipgloss.Color{
	LevelDebug:   slate,
	LevelInfo:    teal,
	LevelAction:  teal,
	LevelSuccess: leaf,
	LevelWarning: amber,
	LevelError:   coral,
}

func levelStyle(level string) lipgloss.Style {
	color, ok := levelColors[level]
	if !ok {
		color = slate
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}
