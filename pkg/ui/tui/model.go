// Package tui is a full-screen dashboard for a scrape run built on
// bubbletea. It implements ui.Output so the scraper can report to it
// the same way it reports to the plain terminal.
package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	LevelDebug   = "DEBUG"
	LevelInfo    = "INFO"
	LevelAction  = "ACTION"
	LevelSuccess = "OK"
	LevelWarning = "WARN"
	LevelError   = "ERROR"
)

const maxLogLines = 200

// LogLine is one entry of the activity panel.
type LogLine struct {
	Time    time.Time
	Level   string
	Message string
}

// Model holds everything the dashboard renders.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	current   int
	total     int
	active    string
	succeeded int
	failed    int
	warnings  int
	finished  bool
	startedAt time.Time
	now       func() time.Time

	logs     []LogLine
	width    int
	height   int
	showHelp bool
	onQuit   func()

	mu sync.RWMutex
}

func NewModel() *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return &Model{
		spinner:   s,
		bar:       bar,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// OnQuit registers a callback run when the user quits the dashboard.
func (m *Model) OnQuit(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onQuit = fn
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *Model) setProgress(current, total int, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = current
	m.total = total
	m.active = label
}

func (m *Model) addLog(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch level {
	case LevelSuccess:
		m.succeeded++
	case LevelError:
		m.failed++
	case LevelWarning:
		m.warnings++
	}

	m.logs = append(m.logs, LogLine{Time: m.now(), Level: level, Message: message})
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *Model) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
	m.active = ""
}

// Counts returns the success, failure and warning tallies.
func (m *Model) Counts() (succeeded, failed, warnings int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.succeeded, m.failed, m.warnings
}

// Logs returns a copy of the activity panel.
func (m *Model) Logs() []LogLine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LogLine(nil), m.logs...)
}

func (m *Model) fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	f := float64(m.current) / float64(m.total)
	if f > 1 {
		f = 1
	}
	return f
}
