// Package dag holds the task-dependency graph used by the scheduler. It
// tracks forward edges (task -> dependents), reverse edges (task ->
// dependencies) and per-task indegree counters, and implements the release
// side of Kahn's algorithm.
//
// A Graph is not safe for concurrent use. The scheduler mutates it from a
// single coordinating goroutine.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the graph contains a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// ErrTaskNotFound is returned when an operation references an unknown task.
var ErrTaskNotFound = errors.New("task not found")

// Edge is a single dependency: Task depends on DependsOn.
type Edge struct {
	Task      uint32
	DependsOn uint32
}

// String renders the edge as "task<-dependsOn".
func (e Edge) String() string {
	return fmt.Sprintf("%d<-%d", e.Task, e.DependsOn)
}

// Graph is a task-dependency graph built by repeated edge insertion.
// Duplicate edges are kept: each insertion adds one forward entry, one
// reverse entry and one unit of indegree.
type Graph struct {
	tasks map[uint32]bool
	// forward maps a task to the tasks that depend on it, in insertion order.
	forward map[uint32][]uint32
	// reverse maps a task to the tasks it depends on, in insertion order.
	reverse map[uint32][]uint32
	// indegree counts unresolved dependencies. Decremented by ReleaseDependents.
	indegree map[uint32]int
	// queued records tasks already handed out as ready.
	queued map[uint32]bool
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:    make(map[uint32]bool),
		forward:  make(map[uint32][]uint32),
		reverse:  make(map[uint32][]uint32),
		indegree: make(map[uint32]int),
		queued:   make(map[uint32]bool),
	}
}

// AddTask registers a task without any edges. Adding a known task is a no-op.
func (g *Graph) AddTask(id uint32) {
	if g.tasks[id] {
		return
	}
	g.tasks[id] = true
	g.indegree[id] = 0
}

// AddEdge records that taskID depends on dependsOn. Both ids are registered.
// Repeated calls add repeated edges; nothing is deduplicated.
func (g *Graph) AddEdge(taskID, dependsOn uint32) {
	g.AddTask(taskID)
	g.AddTask(dependsOn)
	g.forward[dependsOn] = append(g.forward[dependsOn], taskID)
	g.reverse[taskID] = append(g.reverse[taskID], dependsOn)
	g.indegree[taskID]++
}

// Len returns the number of known tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Has reports whether id is a known task.
func (g *Graph) Has(id uint32) bool {
	return g.tasks[id]
}

// Tasks returns every known task id in ascending order.
func (g *Graph) Tasks() []uint32 {
	ids := make([]uint32, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Dependencies returns a copy of the ids that id depends on, in insertion order.
func (g *Graph) Dependencies(id uint32) []uint32 {
	return append([]uint32(nil), g.reverse[id]...)
}

// Dependents returns a copy of the ids that depend on id, in insertion order.
func (g *Graph) Dependents(id uint32) []uint32 {
	return append([]uint32(nil), g.forward[id]...)
}

// Indegree returns the current count of unresolved dependencies of id.
func (g *Graph) Indegree(id uint32) (int, error) {
	if !g.tasks[id] {
		return 0, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return g.indegree[id], nil
}

// Indegrees returns a snapshot of every task's current indegree.
func (g *Graph) Indegrees() map[uint32]int {
	out := make(map[uint32]int, len(g.indegree))
	for id, n := range g.indegree {
		out[id] = n
	}
	return out
}

// InitialReadyTasks returns, in ascending id order, every task whose
// indegree is zero and marks them as queued. These are the scheduling roots.
func (g *Graph) InitialReadyTasks() []uint32 {
	var ready []uint32
	for id := range g.tasks {
		if g.indegree[id] == 0 && !g.queued[id] {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)
	for _, id := range ready {
		g.queued[id] = true
	}
	return ready
}

// ReleaseDependents resolves one dependency for every dependent of id and
// returns those that just became ready, in forward-edge order. A task is
// returned at most once over the lifetime of the graph.
func (g *Graph) ReleaseDependents(id uint32) []uint32 {
	var freed []uint32
	for _, d := range g.forward[id] {
		g.indegree[d]--
		if g.indegree[d] == 0 && !g.queued[d] {
			g.queued[d] = true
			freed = append(freed, d)
		}
	}
	return freed
}

// Queued reports whether id has been handed out as ready.
func (g *Graph) Queued(id uint32) bool {
	return g.queued[id]
}

// Unreleased returns the tasks never handed out as ready, ascending. After a
// full drain these are the tasks caught in, or downstream of, a cycle.
func (g *Graph) Unreleased() []uint32 {
	var out []uint32
	for id := range g.tasks {
		if !g.queued[id] {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// TopologicalSort returns task ids in an order where every dependency comes
// before its dependents. Roots are seeded in ascending order and freed tasks
// are appended in discovery order, matching the scheduler's release order.
// It works on a copy of the counters and leaves run state untouched.
// Returns ErrCycle if some tasks can never be ordered.
func (g *Graph) TopologicalSort() ([]uint32, error) {
	sorted := g.kahnOrder()
	if len(sorted) != len(g.tasks) {
		return nil, fmt.Errorf("%w: not all tasks could be ordered (%d of %d)",
			ErrCycle, len(sorted), len(g.tasks))
	}
	return sorted, nil
}

// Unreachable returns, ascending, the tasks a full drain would never release.
// Unlike Unreleased it leaves run state untouched, so it can be asked before
// scheduling.
func (g *Graph) Unreachable() []uint32 {
	reached := make(map[uint32]bool, len(g.tasks))
	for _, id := range g.kahnOrder() {
		reached[id] = true
	}
	var out []uint32
	for id := range g.tasks {
		if !reached[id] {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// kahnOrder runs Kahn's algorithm on a copy of the counters and returns the
// tasks it reaches in release order.
func (g *Graph) kahnOrder() []uint32 {
	inDegree := make(map[uint32]int, len(g.tasks))
	for id := range g.tasks {
		inDegree[id] = len(g.reverse[id])
	}

	var queue []uint32
	for id, n := range inDegree {
		if n == 0 {
			queue = append(queue, id)
		}
	}
	sortIDs(queue)

	seen := make(map[uint32]bool, len(g.tasks))
	sorted := make([]uint32, 0, len(g.tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, d := range g.forward[id] {
			inDegree[d]--
			if inDegree[d] == 0 && !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}
	return sorted
}

// SelfEdges returns tasks that were added as their own dependency, ascending.
func (g *Graph) SelfEdges() []uint32 {
	var out []uint32
	for id, deps := range g.reverse {
		for _, dep := range deps {
			if dep == id {
				out = append(out, id)
				break
			}
		}
	}
	sortIDs(out)
	return out
}

// DuplicateEdges returns one Edge for every (task, dependsOn) pair that was
// inserted more than once, sorted by task then dependency.
func (g *Graph) DuplicateEdges() []Edge {
	var out []Edge
	for id, deps := range g.reverse {
		count := make(map[uint32]int, len(deps))
		for _, dep := range deps {
			count[dep]++
			if count[dep] == 2 {
				out = append(out, Edge{Task: id, DependsOn: dep})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Task != out[j].Task {
			return out[i].Task < out[j].Task
		}
		return out[i].DependsOn < out[j].DependsOn
	})
	return out
}

func sortIDs(ids []uint32) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
