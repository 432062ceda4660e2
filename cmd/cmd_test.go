package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/graphfile"
	"github.com/papapumpkin/pulsar/internal/history"
	"github.com/papapumpkin/pulsar/internal/scheduler"
	"github.com/papapumpkin/pulsar/internal/telemetry"
	"github.com/papapumpkin/pulsar/internal/ui"
)

const scenarioAGraph = `name = "scenario-a"

[[task]]
id = 2
depends_on = [0]

[[task]]
id = 3
depends_on = [0, 1]

[[task]]
id = 4
depends_on = [1, 5]

[[task]]
id = 5
depends_on = [2]

[[task]]
id = 6
depends_on = [4]
`

func writeGraph(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testConfig returns a config with a millisecond workload unit and all
// state under a temp dir.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		MaxConcurrent:     4,
		AdmissionInterval: 5 * time.Millisecond,
		AdmissionRetries:  200,
		Workload: config.WorkloadConfig{
			Unit:      20 * time.Millisecond,
			SlowIDs:   []uint32{2},
			SlowUnits: 10,
		},
		TelemetryDir: filepath.Join(dir, "telemetry"),
		HistoryDB:    filepath.Join(dir, "history.db"),
	}
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()
	want := map[string][]string{
		"run":       {"max-concurrent", "unit", "watch", "no-history", "no-telemetry"},
		"plan":      {"max-concurrent", "json"},
		"validate":  nil,
		"history":   {"limit", "run"},
		"telemetry": {"run", "follow"},
	}
	for name, flags := range want {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, _, err := rootCmd.Find([]string{name})
			if err != nil || c.Name() != name {
				t.Fatalf("subcommand %q not registered (err=%v)", name, err)
			}
			for _, f := range flags {
				if c.Flags().Lookup(f) == nil {
					t.Errorf("expected flag %q on %s", f, name)
				}
			}
		})
	}
	for _, f := range []string{"config", "verbose", "no-color"} {
		if rootCmd.PersistentFlags().Lookup(f) == nil {
			t.Errorf("expected persistent flag %q", f)
		}
	}
}

func TestRunOnce(t *testing.T) {
	t.Parallel()
	path := writeGraph(t, "a.toml", scenarioAGraph)
	cfg := testConfig(t)
	ctx := context.Background()

	store, err := history.Open(ctx, cfg.HistoryDB)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	loader, err := graphfile.NewLoader(4)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printer := ui.NewWriter(&buf, true)
	err = runOnce(ctx, loader, printer, runOptions{cfg: cfg, path: path, store: store, logger: io.Discard})
	if err != nil {
		t.Fatalf("runOnce: %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), `output:          "0132546"`) {
		t.Errorf("output missing final state:\n%s", buf.String())
	}

	runs, err := store.Recent(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.State != string(scheduler.StateCompleted) || r.Output != "0132546" || r.Graph != "scenario-a" {
		t.Errorf("recorded run = %+v", r)
	}
	if want := []uint32{0, 1, 2, 3, 5, 4, 6}; !reflect.DeepEqual(r.Released, want) {
		t.Errorf("Released = %v, want %v", r.Released, want)
	}

	events, err := telemetry.ReadFile(telemetry.Path(cfg.TelemetryDir, r.RunID))
	if err != nil {
		t.Fatalf("telemetry for recorded run: %v", err)
	}
	if len(events) == 0 || events[len(events)-1].Kind != telemetry.KindRunDone {
		t.Errorf("telemetry should end with run_done, got %d events", len(events))
	}
}

func TestRunOnceOverloaded(t *testing.T) {
	t.Parallel()
	path := writeGraph(t, "a.toml", scenarioAGraph)
	cfg := testConfig(t)
	cfg.MaxConcurrent = 0
	cfg.AdmissionRetries = 3

	loader, err := graphfile.NewLoader(4)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	err = runOnce(context.Background(), loader, ui.NewWriter(&buf, true),
		runOptions{cfg: cfg, path: path, noTelemetry: true, logger: io.Discard})
	if !errors.Is(err, scheduler.ErrOverloaded) {
		t.Fatalf("runOnce = %v, want ErrOverloaded", err)
	}
	if !strings.Contains(buf.String(), "✗ overloaded") {
		t.Errorf("output should report the overload:\n%s", buf.String())
	}
	if _, err := os.Stat(cfg.TelemetryDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("telemetry dir created despite noTelemetry: %v", err)
	}
}

func TestRunOnceDanglingSucceeds(t *testing.T) {
	t.Parallel()
	path := writeGraph(t, "c.hcl", `
name = "cyclic"
task "1" { depends_on = [0] }
task "2" { depends_on = [3] }
task "3" { depends_on = [2] }
`)
	cfg := testConfig(t)
	cfg.Workload.Unit = time.Millisecond

	loader, err := graphfile.NewLoader(4)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	err = runOnce(context.Background(), loader, ui.NewWriter(&buf, true),
		runOptions{cfg: cfg, path: path, noTelemetry: true, logger: io.Discard})
	if err != nil {
		t.Fatalf("runOnce = %v, want nil for dangling tasks", err)
	}
	if !strings.Contains(buf.String(), "2 dangling task(s)") {
		t.Errorf("output should report dangling tasks:\n%s", buf.String())
	}
}

func TestRunOutcome(t *testing.T) {
	t.Parallel()
	overload := &scheduler.OverloadError{Task: 1}
	dangling := &scheduler.DanglingError{Tasks: []uint32{2}}
	taskErr := errors.New("task 4: boom")

	tests := []struct {
		name             string
		schedErr, waitEr error
		want             error
	}{
		{"clean", nil, nil, nil},
		{"overload wins", overload, taskErr, scheduler.ErrOverloaded},
		{"dangling ignored", dangling, nil, nil},
		{"payload failure", dangling, taskErr, taskErr},
	}
	for _, tt := range tests {
		got := runOutcome(tt.schedErr, tt.waitEr)
		if tt.want == nil {
			if got != nil {
				t.Errorf("%s: runOutcome = %v, want nil", tt.name, got)
			}
			continue
		}
		if !errors.Is(got, tt.want) {
			t.Errorf("%s: runOutcome = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGraphIssues(t *testing.T) {
	t.Parallel()
	clean := writeGraph(t, "a.toml", scenarioAGraph)
	_, g, err := loadGraph(clean)
	if err != nil {
		t.Fatal(err)
	}
	if issues := graphIssues(g); len(issues) != 0 {
		t.Errorf("graphIssues(scenario A) = %v, want none", issues)
	}

	broken := writeGraph(t, "b.hcl", `
task "1" { depends_on = [0, 0] }
task "2" { depends_on = [2] }
`)
	_, g, err = loadGraph(broken)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"task 2 depends on itself",
		"duplicate edge 1<-0",
		"cycle detected: not all tasks could be ordered (2 of 3): tasks [2] never reach indegree 0",
	}
	if got := graphIssues(g); !reflect.DeepEqual(got, want) {
		t.Errorf("graphIssues = %q, want %q", got, want)
	}
}

func TestWriteIndegreesJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := writeIndegreesJSON(&buf, map[uint32]int{0: 0, 3: 2, 12: 1}); err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	want := map[string]int{"0": 0, "3": 2, "12": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("indegrees = %v, want %v", got, want)
	}
}

func TestResolveTelemetryPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := resolveTelemetryPath(dir, ""); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("empty dir: err = %v, want os.ErrNotExist", err)
	}
	if _, err := resolveTelemetryPath(dir, "nope"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unknown run: err = %v, want os.ErrNotExist", err)
	}

	path := telemetry.Path(dir, "r1")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"", "r1"} {
		got, err := resolveTelemetryPath(dir, id)
		if err != nil || got != path {
			t.Errorf("resolveTelemetryPath(%q) = %q, %v; want %q", id, got, err, path)
		}
	}
}
