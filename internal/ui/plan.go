package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papapumpkin/pulsar/internal/dag"
)

// PlanView is the input to the plan renderer.
type PlanView struct {
	Name          string
	Graph         *dag.Graph
	MaxConcurrent int
	Budget        time.Duration
}

// planStyles holds the lipgloss styles for one render.
type planStyles struct {
	box     lipgloss.Style
	title   lipgloss.Style
	section lipgloss.Style
	muted   lipgloss.Style
	root    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
}

var (
	colorPrimary = lipgloss.Color("#00BFFF")
	colorSuccess = lipgloss.Color("#00E676")
	colorWarning = lipgloss.Color("#FFB300")
	colorDanger  = lipgloss.Color("#FF5252")
	colorMuted   = lipgloss.Color("#636363")
)

func newPlanStyles(w io.Writer, noColor bool) planStyles {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return planStyles{
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1),
		title:   r.NewStyle().Bold(true).Foreground(colorPrimary),
		section: r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		root:    r.NewStyle().Foreground(colorSuccess),
		warn:    r.NewStyle().Foreground(colorWarning),
		bad:     r.NewStyle().Bold(true).Foreground(colorDanger),
	}
}

// Plan prints the plan view for v.
func (p *Printer) Plan(v PlanView) {
	fmt.Fprint(p.w, RenderPlan(p.w, v, !p.c.Enabled()))
}

// RenderPlan renders the indegree table, the release order and the
// independent tracks of v's graph. w is only used to detect color support.
func RenderPlan(w io.Writer, v PlanView, noColor bool) string {
	st := newPlanStyles(w, noColor)
	g := v.Graph

	edges := 0
	for _, id := range g.Tasks() {
		edges += len(g.Dependencies(id))
	}

	var sb strings.Builder
	header := st.title.Render("plan: "+v.Name) + "\n" +
		st.muted.Render(fmt.Sprintf("%d task(s) · %d edge(s) · max %d concurrent · admission budget %s",
			g.Len(), edges, v.MaxConcurrent, v.Budget))
	sb.WriteString(st.box.Render(header))
	sb.WriteString("\n\n")

	sb.WriteString(st.section.Render("Indegrees:") + "\n")
	indegrees := g.Indegrees()
	for _, id := range g.Tasks() {
		line := fmt.Sprintf("  task %d has indegree %d", id, indegrees[id])
		if deps := g.Dependencies(id); len(deps) > 0 {
			line += st.muted.Render("  <- " + idList(deps))
		} else {
			line += "  " + st.root.Render("(root)")
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\n" + st.section.Render("Release order:") + "\n")
	order, err := g.TopologicalSort()
	switch {
	case errors.Is(err, dag.ErrCycle):
		sb.WriteString("  " + st.bad.Render("cycle detected") + " " +
			st.muted.Render(fmt.Sprintf("(%d of %d task(s) cannot be ordered)", len(g.Unreachable()), g.Len())) + "\n")
	case len(order) == 0:
		sb.WriteString("  " + st.muted.Render("(empty graph)") + "\n")
	default:
		sb.WriteString("  " + joinIDs(order, " → ") + "\n")
	}

	tracks := g.Tracks()
	sb.WriteString(fmt.Sprintf("\n%s %d\n", st.section.Render("Tracks:"), len(tracks)))
	for _, tr := range tracks {
		sb.WriteString(fmt.Sprintf("  Track %d: %s\n", tr.ID, joinIDs(tr.TaskIDs, " → ")))
	}

	if self := g.SelfEdges(); len(self) > 0 {
		sb.WriteString("\n" + st.warn.Render("self edges: "+idList(self)) + "\n")
	}
	if dups := g.DuplicateEdges(); len(dups) > 0 {
		parts := make([]string, len(dups))
		for i, e := range dups {
			parts[i] = e.String()
		}
		sb.WriteString(st.warn.Render("duplicate edges: "+strings.Join(parts, ", ")) + "\n")
	}
	return sb.String()
}

func joinIDs(ids []uint32, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, sep)
}
