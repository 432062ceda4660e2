package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/pulsar/internal/history"
	"github.com/papapumpkin/pulsar/internal/registry"
	"github.com/papapumpkin/pulsar/internal/scheduler"
	"github.com/papapumpkin/pulsar/internal/telemetry"
)

func plainPrinter() (*Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewWriter(&buf, true), &buf
}

func assertContains(t *testing.T, output string, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, output)
		}
	}
}

func TestNoColorHasNoEscapes(t *testing.T) {
	t.Parallel()
	p, buf := plainPrinter()
	p.Banner()
	p.Error("boom")
	p.Info("hello")
	p.Progress(1, 2, 1)
	p.ProgressDone()
	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("no-color output contains escape codes:\n%q", buf.String())
	}
	assertContains(t, buf.String(), "PULSAR", "error: boom", "hello", "[pulsar] 1/2 tasks done | 1 running\n")
}

func TestColorProgressOverwritesLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := NewWriter(&buf, false)
	p.Progress(3, 7, 2)
	out := buf.String()
	if !strings.HasPrefix(out, "\r\033[2K") {
		t.Errorf("progress should start with carriage return and clear line, got %q", out)
	}
	if strings.Contains(out, "\n") {
		t.Errorf("progress should not end the line, got %q", out)
	}
}

func TestRunStart(t *testing.T) {
	t.Parallel()
	p, buf := plainPrinter()
	p.RunStart("scenario-a", "abc", 7, 4, 100*time.Second)
	assertContains(t, buf.String(), "scenario-a", "7 task(s)", "max 4 concurrent", "1m40s", "run id: abc")
}

func TestRunResult(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	report := &scheduler.Report{
		MaxConcurrent:  4,
		Tasks:          9,
		Released:       []uint32{0, 1, 2, 3, 5, 4, 6},
		Unreleased:     []uint32{7, 8},
		AdmissionWaits: 2,
		PeakRunning:    4,
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
	}

	tests := []struct {
		name   string
		state  scheduler.State
		failed []uint32
		want   []string
	}{
		{"completed", scheduler.StateCompleted, nil, []string{"✓ completed in 1.5s"}},
		{"completed with failures", scheduler.StateCompleted, []uint32{3}, []string{"⚠ completed", "failed:          [3]"}},
		{"overloaded", scheduler.StateOverloaded, nil, []string{"✗ overloaded"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := *report
			r.Failed = tt.failed
			p, buf := plainPrinter()
			p.RunResult(tt.state, &r, "0132546")
			assertContains(t, buf.String(), tt.want...)
			assertContains(t, buf.String(),
				`output:          "0132546"`,
				"released:        7/9 [0,1,2,3,5,4,6]",
				"peak running:    4 (max 4)",
				"admission waits: 2",
				"unreleased:      [7,8]",
			)
		})
	}
}

func TestRunError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "overload",
			err: fmt.Errorf("run: %w", &scheduler.OverloadError{
				Task: 5, Budget: 40 * time.Millisecond, Running: []uint32{1, 2}, Pending: []uint32{5, 6},
			}),
			want: []string{"✗ overloaded", "task 5 waited 40ms", "running at abort: [1,2]", "never launched:   [5,6]"},
		},
		{
			name: "dangling",
			err:  &scheduler.DanglingError{Tasks: []uint32{3, 4}},
			want: []string{"2 dangling task(s)", "[3,4] never reached indegree 0"},
		},
		{
			name: "other",
			err:  errors.New("disk full"),
			want: []string{"error: disk full"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, buf := plainPrinter()
			p.RunError(tt.err)
			assertContains(t, buf.String(), tt.want...)
		})
	}
}

func TestTaskFailures(t *testing.T) {
	t.Parallel()
	p, buf := plainPrinter()
	p.TaskFailures([]registry.Status{
		{ID: 1, Phase: registry.PhaseDone},
		{ID: 2, Phase: registry.PhaseFailed, Err: errors.New("exit 3")},
	})
	out := buf.String()
	assertContains(t, out, "✗ task 2 exit 3")
	if strings.Contains(out, "task 1") {
		t.Errorf("done task listed as failure:\n%s", out)
	}
}

func TestValidateResult(t *testing.T) {
	t.Parallel()
	p, buf := plainPrinter()
	p.ValidateResult("ok", 7, nil)
	p.ValidateResult("bad", 3, []string{"self edge on task 2", "cycle detected"})
	assertContains(t, buf.String(),
		`✓ graph "ok" 7 task(s), no issues`,
		`✗ graph "bad" 2 issue(s):`,
		"• self edge on task 2",
		"• cycle detected",
	)
}

func TestHistory(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	p, buf := plainPrinter()
	p.History(nil, now)
	assertContains(t, buf.String(), "no recorded runs")

	p, buf = plainPrinter()
	p.History([]history.Run{
		{
			RunID: "r2", Graph: "a-very-long-graph-name", State: "overloaded", Tasks: 7,
			StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2*time.Hour + 250*time.Millisecond),
			Error: "scheduler overloaded: task 3",
		},
		{
			RunID: "r1", Graph: "scenario-b", State: "completed", Tasks: 7,
			StartedAt: now.Add(-3 * 24 * time.Hour), FinishedAt: now.Add(-3*24*time.Hour + 27*time.Second),
		},
	}, now)
	assertContains(t, buf.String(),
		"RUN", "STARTED",
		"a-very-long-gra…",
		"overloaded", "250ms", "2 hours ago",
		"scheduler overloaded: task 3",
		"scenario-b", "27s", "3 days ago",
	)
}

func TestEvent(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 1, 9, 30, 15, 123e6, time.UTC)

	p, buf := plainPrinter()
	p.Event(telemetry.Event{Timestamp: ts, Kind: telemetry.KindTaskDone, TaskID: telemetry.Task(0), Data: map[string]any{"ok": true}})
	p.Event(telemetry.Event{Timestamp: ts, Kind: telemetry.KindRunDone, Data: map[string]any{}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	assertContains(t, lines[0], "09:30:15.123", "task_done", "task=0", `{"ok":true}`)
	if strings.Contains(lines[1], "task=") || strings.Contains(lines[1], "{}") {
		t.Errorf("run_done line should carry no task or empty data: %q", lines[1])
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 16, "short"},
		{"exactlysixteen!!", 16, "exactlysixteen!!"},
		{"seventeen chars!!", 16, "seventeen chars…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
