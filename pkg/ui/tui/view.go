package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"wellbin/pkg/ui"
)

func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.width == 0 {
		return "Initializing..."
	}

	sections := []string{
		headerStyle.Render("wellbin · medical record downloader"),
		m.renderProgress(),
		m.renderLogs(),
	}
	if m.showHelp {
		sections = append(sections, helpStyle.Render("q quit  ? toggle help  ctrl+l clear activity"))
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderProgress() string {
	status := m.spinner.View() + " " + m.active
	if m.finished {
		status = levelStyle(LevelSuccess).Render("✓ run complete")
	} else if m.active == "" {
		status = m.spinner.View() + " " + dimStyle.Render("waiting")
	}

	stats := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Studies:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.current, m.total)),
		labelStyle.Render("Saved:"), valueStyle.Render(fmt.Sprint(m.succeeded)),
		labelStyle.Render("Failed:"), valueStyle.Render(fmt.Sprint(m.failed)),
		labelStyle.Render("Elapsed:"), valueStyle.Render(ui.FormatDuration(m.now().Sub(m.startedAt))),
	)

	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(" PROGRESS "),
		m.bar.ViewAs(m.fraction()),
		stats,
		status,
	)
	return panelStyle.Width(m.panelWidth()).Render(body)
}

func (m *Model) renderLogs() string {
	visible := m.height - 14
	if visible < 5 {
		visible = 5
	}
	start := len(m.logs) - visible
	if start < 0 {
		start = 0
	}

	limit := m.panelWidth() - 22
	lines := make([]string, 0, len(m.logs)-start)
	for _, line := range m.logs[start:] {
		msg := line.Message
		if limit > 3 && len(msg) > limit {
			msg = msg[:limit-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			dimStyle.Render(line.Time.Format("15:04:05")),
			levelStyle(line.Level).Render(fmt.Sprintf("%-6s", line.Level)),
			msg,
		))
	}

	content := strings.Join(lines, "\n")
	if content == "" {
		content = dimStyle.Render("No activity yet")
	}
	return panelStyle.Width(m.panelWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" ACTIVITY "), content),
	)
}

func (m *Model) panelWidth() int {
	return clamp(m.width-2, 20, 160)
}
