package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	barFull  = "━"
	barEmpty = "─"
)

func progressBar(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = current * width / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat(barFull, filled) + strings.Repeat(barEmpty, width-filled) + "]"
}

// Tracker accumulates per-study progress for a run and renders the status
// line and final summary through an Output.
type Tracker struct {
	mu        sync.Mutex
	out       Output
	total     int
	done      int
	succeeded int
	failed    int
	skipped   int
	bytes     int64
	startTime time.Time
	now       func() time.Time
}

func NewTracker(out Output, total int) *Tracker {
	if out == nil {
		out = Nop{}
	}
	return &Tracker{out: out, total: total, startTime: time.Now(), now: time.Now}
}

// Start announces the study about to be processed.
func (t *Tracker) Start(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out.Progress(t.done+1, t.total, label)
}

func (t *Tracker) Succeed(label string, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	t.succeeded++
	t.bytes += size
	t.out.Success(fmt.Sprintf("%s (%s)", label, FormatBytes(size)))
}

func (t *Tracker) Fail(label string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	t.failed++
	t.out.Error(fmt.Sprintf("%s: %v", label, err))
}

func (t *Tracker) Skip(label, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	t.skipped++
	t.out.Warning(fmt.Sprintf("%s skipped: %s", label, reason))
}

// Status is the one-line running summary.
func (t *Tracker) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := fmt.Sprintf("%s %d/%d • %s • ETA %s",
		progressBar(t.done, t.total, 20), t.done, t.total, FormatBytes(t.bytes), t.eta())
	if t.failed > 0 {
		line += fmt.Sprintf(" • %d failed", t.failed)
	}
	return line
}

func (t *Tracker) eta() string {
	if t.done == 0 {
		return "calculating..."
	}
	if t.done >= t.total {
		return "0s"
	}
	elapsed := t.now().Sub(t.startTime)
	perItem := elapsed / time.Duration(t.done)
	return FormatDuration(perItem * time.Duration(t.total-t.done))
}

// Complete prints the closing summary.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.now().Sub(t.startTime)
	t.out.Info(fmt.Sprintf("Processed %d/%d studies in %s: %d downloaded, %d failed, %d skipped, %s written",
		t.done, t.total, FormatDuration(elapsed), t.succeeded, t.failed, t.skipped, FormatBytes(t.bytes)))
}

func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
