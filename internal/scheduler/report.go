package scheduler

import "time"

// State is the scheduler's lifecycle state.
type State string

const (
	// StateBuilding accepts graph mutations.
	StateBuilding State = "building"
	// StateDraining is the release loop.
	StateDraining State = "draining"
	// StateCompleted means every reachable task was released.
	StateCompleted State = "completed"
	// StateOverloaded means admission control aborted the run.
	StateOverloaded State = "overloaded"
	// StateCanceled means the caller's context ended during the release loop.
	StateCanceled State = "canceled"
)

// Report summarizes one scheduling run. Schedule fills everything except
// FinishedAt and Failed, which are set once every activation has ended.
type Report struct {
	RunID         string
	MaxConcurrent int
	Tasks         int
	// Released lists task ids in release order.
	Released []uint32
	// Unreleased lists tasks never released, ascending.
	Unreleased     []uint32
	AdmissionWaits int
	PeakRunning    int
	Failed         []uint32
	StartedAt      time.Time
	ScheduledAt    time.Time
	FinishedAt     time.Time
}

// Duration returns how long the run took, up to FinishedAt when set and up to
// ScheduledAt otherwise.
func (r *Report) Duration() time.Duration {
	end := r.FinishedAt
	if end.IsZero() {
		end = r.ScheduledAt
	}
	if end.IsZero() {
		return 0
	}
	return end.Sub(r.StartedAt)
}
