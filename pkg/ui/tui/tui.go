package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"wellbin/pkg/ui"
)

// TUI drives a Model inside a bubbletea program.
type TUI struct {
	program *tea.Program
	model   *Model
	verbose bool
}

func New(verbose bool, opts ...tea.ProgramOption) *TUI {
	model := NewModel()
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
		verbose: verbose,
	}
}

// Run blocks until the user quits.
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

func (t *TUI) Quit() { t.program.Quit() }

// OnQuit registers fn to run when the user presses q.
func (t *TUI) OnQuit(fn func()) { t.model.OnQuit(fn) }

// Done marks the run finished without closing the dashboard.
func (t *TUI) Done() { t.program.Send(DoneMsg{}) }

func (t *TUI) Model() *Model { return t.model }

func (t *TUI) log(level, msg string) {
	t.program.Send(LogMsg{Level: level, Message: msg})
}

func (t *TUI) Debug(msg string) {
	if t.verbose {
		t.log(LevelDebug, msg)
	}
}

func (t *TUI) Info(msg string)    { t.log(LevelInfo, msg) }
func (t *TUI) Success(msg string) { t.log(LevelSuccess, msg) }
func (t *TUI) Warning(msg string) { t.log(LevelWarning, msg) }
func (t *TUI) Error(msg string)   { t.log(LevelError, msg) }
func (t *TUI) Action(msg string)  { t.log(LevelAction, msg) }

func (t *TUI) Progress(current, total int, msg string) {
	t.program.Send(ProgressMsg{Current: current, Total: total, Label: msg})
}

var _ ui.Output = (*TUI)(nil)
