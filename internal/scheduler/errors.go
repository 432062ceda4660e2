package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for scheduling.
var (
	// ErrOverloaded indicates admission control gave up waiting for a free slot.
	ErrOverloaded = errors.New("scheduler overloaded")
	// ErrDanglingTasks indicates some tasks never became ready, which means
	// they sit in or downstream of a dependency cycle.
	ErrDanglingTasks = errors.New("dangling tasks")
	// ErrNotBuilding indicates the graph was mutated after scheduling began.
	ErrNotBuilding = errors.New("scheduler is no longer building")
)

// OverloadError reports an aborted run: the release loop could not admit
// Task within Budget.
type OverloadError struct {
	Task    uint32        // task waiting for admission when the run aborted
	Budget  time.Duration // admission budget that elapsed
	Running []uint32      // launched tasks still unfinished at abort time
	Pending []uint32      // tasks never launched
	Err     error         // underlying admission error
}

// Error returns a summary naming the blocked task and both id sets.
func (e *OverloadError) Error() string {
	return fmt.Sprintf("%v: task %d not admitted within %s (running: %s; never launched: %s)",
		ErrOverloaded, e.Task, e.Budget, formatIDs(e.Running), formatIDs(e.Pending))
}

// Unwrap exposes both ErrOverloaded and the admission error.
func (e *OverloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOverloaded}
	}
	return []error{ErrOverloaded, e.Err}
}

// DanglingError lists tasks the release loop never reached.
type DanglingError struct {
	Tasks []uint32
}

// Error returns the dangling ids.
func (e *DanglingError) Error() string {
	return fmt.Sprintf("%v: %s never reached indegree 0", ErrDanglingTasks, formatIDs(e.Tasks))
}

// Unwrap returns ErrDanglingTasks.
func (e *DanglingError) Unwrap() error {
	return ErrDanglingTasks
}

func formatIDs(ids []uint32) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
