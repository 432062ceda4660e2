package registry

import "time"

// Phase describes where a launched task is in its lifecycle.
type Phase string

const (
	// PhaseWaiting means the task is launched and waiting on its dependencies.
	PhaseWaiting Phase = "waiting"
	// PhaseRunning means the task's payload is executing.
	PhaseRunning Phase = "running"
	// PhaseDone means the task completed without error.
	PhaseDone Phase = "done"
	// PhaseFailed means the task completed with an error, including a skipped
	// payload after a failed dependency.
	PhaseFailed Phase = "failed"
)

// Handle is the completion handle of one task activation. It is created by
// the activation before launch and owned by the Registry afterwards; only
// Registry.Complete finishes it.
type Handle struct {
	ID uint32

	done       chan struct{}
	err        error
	finished   bool
	launchedAt time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// NewHandle creates an unfinished handle for task id.
func NewHandle(id uint32) *Handle {
	return &Handle{
		ID:   id,
		done: make(chan struct{}),
	}
}

// Done returns a channel that is closed once the task has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the activation error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Status is a point-in-time copy of a handle's state.
type Status struct {
	ID         uint32
	Phase      Phase
	Err        error
	LaunchedAt time.Time
	StartedAt  time.Time // zero until the payload starts
	FinishedAt time.Time // zero until completion
}

// status must be called with the registry lock held.
func (h *Handle) status() Status {
	s := Status{
		ID:         h.ID,
		Phase:      PhaseWaiting,
		Err:        h.err,
		LaunchedAt: h.launchedAt,
		StartedAt:  h.startedAt,
		FinishedAt: h.finishedAt,
	}
	switch {
	case h.finished && h.err != nil:
		s.Phase = PhaseFailed
	case h.finished:
		s.Phase = PhaseDone
	case !h.startedAt.IsZero():
		s.Phase = PhaseRunning
	}
	return s
}
