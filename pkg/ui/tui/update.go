package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgressMsg moves the run to study Current of Total.
type ProgressMsg struct {
	Current int
	Total   int
	Label   string
}

// LogMsg appends a line to the activity panel.
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg marks the run as finished; the dashboard stays up until quit.
type DoneMsg struct{}

// TickMsg refreshes elapsed time.
type TickMsg time.Time

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = clamp(msg.Width-30, 10, 80)
		m.mu.Unlock()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case ProgressMsg:
		m.setProgress(msg.Current, msg.Total, msg.Label)
		return m, nil

	case LogMsg:
		m.addLog(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.finish()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.mu.RLock()
		fn := m.onQuit
		m.mu.RUnlock()
		if fn != nil {
			fn()
		}
		return m, tea.Quit

	case "?":
		m.mu.Lock()
		m.showHelp = !m.showHelp
		m.mu.Unlock()

	case "ctrl+l":
		m.mu.Lock()
		m.logs = nil
		m.mu.Unlock()
	}
	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
