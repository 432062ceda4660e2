// Package workload provides the simulated payload used by the pulsar CLI and
// the shared State container the payloads append their results to.
package workload

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/papapumpkin/pulsar/internal/task"
)

// Default workload parameters.
const (
	DefaultUnit      = time.Second
	DefaultSlowUnits = 10
)

// DefaultSlowIDs lists the task ids that take DefaultSlowUnits extra units.
var DefaultSlowIDs = []uint32{2}

// State accumulates payload results in completion order. It is safe for
// concurrent use.
type State struct {
	mu  sync.Mutex
	buf strings.Builder
}

// Add appends v to the state.
func (s *State) Add(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(v)
}

// Get returns the accumulated state.
func (s *State) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Sim builds simulated payloads: task id sleeps id units, plus SlowUnits
// extra units when id is listed in SlowIDs, then appends its decimal id to
// State.
type Sim struct {
	Unit      time.Duration
	SlowIDs   []uint32
	SlowUnits int
	State     *State
}

// NewSim creates a Sim with the default timing writing to state.
func NewSim(state *State) *Sim {
	return &Sim{
		Unit:      DefaultUnit,
		SlowIDs:   slices.Clone(DefaultSlowIDs),
		SlowUnits: DefaultSlowUnits,
		State:     state,
	}
}

// Duration returns how long the payload for id sleeps.
func (s *Sim) Duration(id uint32) time.Duration {
	units := time.Duration(id)
	if slices.Contains(s.SlowIDs, id) {
		units += time.Duration(s.SlowUnits)
	}
	return units * s.Unit
}

// Payload returns the payload for task id. It matches the scheduler's
// payload factory signature.
func (s *Sim) Payload(id uint32) task.Payload {
	d := s.Duration(id)
	return func(ctx context.Context) error {
		if d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if s.State != nil {
			s.State.Add(strconv.FormatUint(uint64(id), 10))
		}
		return nil
	}
}
