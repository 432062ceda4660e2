// Package ui provides stderr-based terminal output for pulsar.
package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/papapumpkin/pulsar/internal/ansi"
	"github.com/papapumpkin/pulsar/internal/history"
	"github.com/papapumpkin/pulsar/internal/registry"
	"github.com/papapumpkin/pulsar/internal/scheduler"
	"github.com/papapumpkin/pulsar/internal/telemetry"
)

// Printer writes human-readable progress and results.
type Printer struct {
	w io.Writer
	c ansi.Palette
}

// New returns a colored Printer writing to stderr.
func New() *Printer {
	return NewWriter(os.Stderr, false)
}

// NewWriter returns a Printer writing to w. noColor drops all escape codes.
func NewWriter(w io.Writer, noColor bool) *Printer {
	return &Printer{w: w, c: ansi.NewPalette(!noColor)}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) Banner() {
	c := p.c
	p.printf("%s  ╔═══════════════════════════════════╗%s\n", c.Bold+c.Cyan, c.Reset)
	p.printf("%s  ║%s%s   PULSAR  %sdependency scheduler%s%s    ║%s\n",
		c.Bold+c.Cyan, c.Reset, c.Bold, c.Dim, c.Reset, c.Bold+c.Cyan, c.Reset)
	p.printf("%s  ╚═══════════════════════════════════╝%s\n\n", c.Bold+c.Cyan, c.Reset)
}

func (p *Printer) Error(msg string) {
	p.printf("%serror: %s%s\n", p.c.Red+p.c.Bold, p.c.Reset, msg)
}

func (p *Printer) Info(msg string) {
	p.printf("%s%s%s\n", p.c.Dim, msg, p.c.Reset)
}

// RunStart announces a run before the release loop begins.
func (p *Printer) RunStart(graph, runID string, tasks, maxConcurrent int, budget time.Duration) {
	c := p.c
	p.printf("%s▶ run%s %s %s(%d task(s), max %d concurrent, admission budget %s)%s\n",
		c.Cyan+c.Bold, c.Reset, graph, c.Dim, tasks, maxConcurrent, budget, c.Reset)
	p.printf("%s  run id: %s%s\n", c.Dim, runID, c.Reset)
}

// ProgressLine formats a progress line without escape codes.
func ProgressLine(done, total, running int) string {
	return fmt.Sprintf("[pulsar] %d/%d tasks done | %d running", done, total, running)
}

// Progress overwrites the current line with a progress summary. Without color
// each update is written on its own line.
func (p *Printer) Progress(done, total, running int) {
	line := ProgressLine(done, total, running)
	if !p.c.Enabled() {
		p.printf("%s\n", line)
		return
	}
	p.printf("\r%s%s%s%s", ansi.ClearLine, p.c.Cyan, line, p.c.Reset)
}

// ProgressDone ends an in-place progress line.
func (p *Printer) ProgressDone() {
	if p.c.Enabled() {
		p.printf("\n")
	}
}

// RunResult prints the outcome of a finished run: final state, shared output
// and counters from the report.
func (p *Printer) RunResult(state scheduler.State, r *scheduler.Report, output string) {
	c := p.c
	symbol, color := "✓", c.Green
	switch state {
	case scheduler.StateOverloaded, scheduler.StateCanceled:
		symbol, color = "✗", c.Red
	}
	if state == scheduler.StateCompleted && len(r.Failed) > 0 {
		symbol, color = "⚠", c.Yellow
	}
	p.printf("%s%s %s%s in %s\n", color+c.Bold, symbol, state, c.Reset, r.Duration().Round(time.Millisecond))
	p.printf("  output:          %s%q%s\n", c.Bold, output, c.Reset)
	p.printf("  released:        %d/%d %s%s%s\n", len(r.Released), r.Tasks, c.Dim, idList(r.Released), c.Reset)
	p.printf("  peak running:    %d (max %d)\n", r.PeakRunning, r.MaxConcurrent)
	p.printf("  admission waits: %d\n", r.AdmissionWaits)
	if len(r.Unreleased) > 0 {
		p.printf("  unreleased:      %s%s%s\n", c.Yellow, idList(r.Unreleased), c.Reset)
	}
	if len(r.Failed) > 0 {
		p.printf("  failed:          %s%s%s\n", c.Red, idList(r.Failed), c.Reset)
	}
}

// RunError explains a run error. Overload and dangling errors get their id
// sets spelled out; anything else is printed as is.
func (p *Printer) RunError(err error) {
	c := p.c
	var oe *scheduler.OverloadError
	var de *scheduler.DanglingError
	switch {
	case errors.As(err, &oe):
		p.printf("%s✗ overloaded%s task %d waited %s for a free slot\n", c.Red+c.Bold, c.Reset, oe.Task, oe.Budget)
		p.printf("  running at abort: %s\n", idList(oe.Running))
		p.printf("  never launched:   %s\n", idList(oe.Pending))
	case errors.As(err, &de):
		p.printf("%s⚠ %d dangling task(s)%s %s never reached indegree 0 (cycle or missing dependency)\n",
			c.Yellow+c.Bold, len(de.Tasks), c.Reset, idList(de.Tasks))
	default:
		p.Error(err.Error())
	}
}

// TaskFailures lists failed activations from a registry snapshot.
func (p *Printer) TaskFailures(statuses []registry.Status) {
	for _, s := range statuses {
		if s.Phase != registry.PhaseFailed {
			continue
		}
		p.printf("  %s✗ task %d%s %v\n", p.c.Red, s.ID, p.c.Reset, s.Err)
	}
}

// ValidateResult prints the findings of a graph validation.
func (p *Printer) ValidateResult(name string, taskCount int, issues []string) {
	c := p.c
	if len(issues) == 0 {
		p.printf("%s✓ graph %q%s %d task(s), no issues\n", c.Green+c.Bold, name, c.Reset, taskCount)
		return
	}
	p.printf("%s✗ graph %q%s %d issue(s):\n", c.Red+c.Bold, name, c.Reset, len(issues))
	for _, is := range issues {
		p.printf("  %s• %s%s\n", c.Red, c.Reset, is)
	}
}

// History prints recorded runs, newest first, with start times relative to now.
func (p *Printer) History(runs []history.Run, now time.Time) {
	c := p.c
	if len(runs) == 0 {
		p.Info("no recorded runs")
		return
	}
	p.printf("%s%-36s  %-16s  %-10s  %5s  %-10s  %s%s\n",
		c.Bold, "RUN", "GRAPH", "STATE", "TASKS", "DURATION", "STARTED", c.Reset)
	for _, r := range runs {
		color := c.Green
		switch scheduler.State(r.State) {
		case scheduler.StateOverloaded, scheduler.StateCanceled:
			color = c.Red
		}
		p.printf("%-36s  %-16s  %s%-10s%s  %5d  %-10s  %s\n",
			r.RunID, truncate(r.Graph, 16), color, r.State, c.Reset, r.Tasks,
			r.Duration().Round(time.Millisecond), humanize.RelTime(r.StartedAt, now, "ago", "from now"))
		if r.Error != "" {
			p.printf("  %s%s%s\n", c.Dim, r.Error, c.Reset)
		}
	}
}

// Event prints one telemetry event as a single line.
func (p *Printer) Event(ev telemetry.Event) {
	c := p.c
	color := c.Dim
	switch ev.Kind {
	case telemetry.KindTaskDone, telemetry.KindRunDone:
		color = c.Green
	case telemetry.KindAdmissionWait, telemetry.KindDangling:
		color = c.Yellow
	case telemetry.KindOverload:
		color = c.Red
	case telemetry.KindTaskReleased, telemetry.KindTaskLaunched, telemetry.KindTaskStarted:
		color = c.Cyan
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s%-14s%s", ev.Timestamp.Format("15:04:05.000"), color, ev.Kind, c.Reset)
	if ev.TaskID != nil {
		fmt.Fprintf(&b, " task=%d", *ev.TaskID)
	}
	if ev.Data != nil {
		if data, err := json.Marshal(ev.Data); err == nil && string(data) != "{}" {
			fmt.Fprintf(&b, " %s%s%s", c.Dim, data, c.Reset)
		}
	}
	p.printf("%s\n", b.String())
}

func idList(ids []uint32) string {
	if len(ids) == 0 {
		return "[]"
	}
	return strings.ReplaceAll(fmt.Sprint(ids), " ", ",")
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
