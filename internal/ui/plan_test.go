package ui

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/pulsar/internal/dag"
)

func scenarioA() *dag.Graph {
	g := dag.New()
	for _, e := range [][2]uint32{{2, 0}, {3, 0}, {3, 1}, {4, 1}, {5, 2}, {4, 5}, {6, 4}} {
		g.AddEdge(e[0], e[1])
	}
	return g
}

func TestRenderPlan(t *testing.T) {
	t.Parallel()
	out := RenderPlan(io.Discard, PlanView{
		Name:          "scenario-a",
		Graph:         scenarioA(),
		MaxConcurrent: 4,
		Budget:        100 * time.Second,
	}, true)

	if strings.Contains(out, "\033[") {
		t.Errorf("no-color plan contains escape codes:\n%s", out)
	}
	assertContains(t, out,
		"plan: scenario-a",
		"7 task(s) · 7 edge(s) · max 4 concurrent · admission budget 1m40s",
		"task 0 has indegree 0  (root)",
		"task 3 has indegree 2  <- [0,1]",
		"task 4 has indegree 2  <- [1,5]",
		"0 → 1 → 2 → 3 → 5 → 4 → 6",
		"Tracks: 1",
		"Track 0: 0 → 1 → 2 → 3 → 5 → 4 → 6",
	)
	if strings.Contains(out, "self edges") || strings.Contains(out, "duplicate edges") {
		t.Errorf("clean graph should have no warnings:\n%s", out)
	}
}

func TestRenderPlanCycleAndWarnings(t *testing.T) {
	t.Parallel()
	g := dag.New()
	g.AddTask(0)
	g.AddEdge(1, 0)
	g.AddEdge(1, 0)
	g.AddEdge(2, 3)
	g.AddEdge(3, 2)
	g.AddEdge(4, 4)

	out := RenderPlan(io.Discard, PlanView{Name: "broken", Graph: g}, true)
	assertContains(t, out,
		"cycle detected (3 of 5 task(s) cannot be ordered)",
		"Tracks: 3",
		"self edges: [4]",
		"duplicate edges: 1<-0",
	)
}

func TestRenderPlanEmpty(t *testing.T) {
	t.Parallel()
	out := RenderPlan(io.Discard, PlanView{Name: "empty", Graph: dag.New()}, true)
	assertContains(t, out, "0 task(s)", "(empty graph)", "Tracks: 0")
}

func TestPrinterPlan(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWriter(&buf, true).Plan(PlanView{Name: "scenario-a", Graph: scenarioA(), MaxConcurrent: 4})
	assertContains(t, buf.String(), "plan: scenario-a", "Release order:")
}
