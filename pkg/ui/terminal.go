package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Banner is printed at the start of interactive runs.
const Banner = `
  ┌──────────────────────────────────────────────┐
  │  wellbin · medical record downloader         │
  └──────────────────────────────────────────────┘
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// Output is the leveled status sink the scraper reports to.
type Output interface {
	Debug(msg string)
	Info(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
	Progress(current, total int, msg string)
	Action(msg string)
}

// Terminal writes colored status lines. Debug lines are shown only when
// Verbose is set; Quiet drops everything below warnings.
type Terminal struct {
	w       io.Writer
	Verbose bool
	Quiet   bool
	NoColor bool
	mu      sync.Mutex
}

func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = os.Stdout
	}
	return &Terminal{w: w}
}

func (t *Terminal) paint(color func(string) string, s string) string {
	if t.NoColor {
		return s
	}
	return color(s)
}

func (t *Terminal) line(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format+"\n", args...)
}

func (t *Terminal) Debug(msg string) {
	if !t.Verbose || t.Quiet {
		return
	}
	t.line("%s %s", t.paint(Dim, "·"), t.paint(Dim, msg))
}

func (t *Terminal) Info(msg string) {
	if t.Quiet {
		return
	}
	t.line("%s %s", t.paint(Cyan, "ℹ"), msg)
}

func (t *Terminal) Success(msg string) {
	if t.Quiet {
		return
	}
	t.line("%s %s", t.paint(Green, "✓"), msg)
}

func (t *Terminal) Warning(msg string) {
	t.line("%s %s", t.paint(Yellow, "⚠"), t.paint(Yellow, msg))
}

func (t *Terminal) Error(msg string) {
	t.line("%s %s", t.paint(Red, "✗"), t.paint(Red, msg))
}

func (t *Terminal) Progress(current, total int, msg string) {
	if t.Quiet {
		return
	}
	t.line("%s %s %s", t.paint(Magenta, fmt.Sprintf("[%d/%d]", current, total)), progressBar(current, total, 20), msg)
}

func (t *Terminal) Action(msg string) {
	if t.Quiet {
		return
	}
	t.line("%s %s", t.paint(Magenta, "→"), msg)
}

// Field prints an aligned label/value pair.
func (t *Terminal) Field(label, value string) {
	if t.Quiet {
		return
	}
	t.line("  %-18s %s", t.paint(Cyan, label+":"), t.paint(Yellow, value))
}

func (t *Terminal) PrintBanner() {
	if t.Quiet {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.w, t.paint(Cyan, Banner))
}

// Nop discards all output.
type Nop struct{}

func (Nop) Debug(string)              {}
func (Nop) Info(string)               {}
func (Nop) Success(string)            {}
func (Nop) Warning(string)            {}
func (Nop) Error(string)              {}
func (Nop) Progress(int, int, string) {}
func (Nop) Action(string)             {}

// Event is one call recorded by Recorder.
type Event struct {
	Level   string
	Message string
}

// Recorder keeps every call in order, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Level: level, Message: msg})
}

func (r *Recorder) Debug(msg string)   { r.add("debug", msg) }
func (r *Recorder) Info(msg string)    { r.add("info", msg) }
func (r *Recorder) Success(msg string) { r.add("success", msg) }
func (r *Recorder) Warning(msg string) { r.add("warning", msg) }
func (r *Recorder) Error(msg string)   { r.add("error", msg) }
func (r *Recorder) Action(msg string)  { r.add("action", msg) }

func (r *Recorder) Progress(current, total int, msg string) {
	r.add("progress", fmt.Sprintf("%d/%d %s", current, total, msg))
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events were recorded at level.
func (r *Recorder) Count(level string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Level == level {
			n++
		}
	}
	return n
}

var (
	_ Output = (*Terminal)(nil)
	_ Output = Nop{}
	_ Output = (*Recorder)(nil)
)
