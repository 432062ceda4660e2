// Package registry tracks the execution handle of every launched task and lets
// callers block until tasks complete or until running capacity frees up.
//
// Waiting is notification-based: every Launch, Start and Complete closes the
// current broadcast channel and installs a fresh one, so blocked callers wake
// up and re-check their condition instead of polling.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Sentinel errors for registry operations.
var (
	// ErrNotLaunched indicates an operation on a task id that was never launched.
	ErrNotLaunched = errors.New("task not launched")
	// ErrAlreadyCompleted indicates Complete was called twice for the same task.
	ErrAlreadyCompleted = errors.New("task already completed")
	// ErrDependencyFailed indicates a dependency finished with an error.
	ErrDependencyFailed = errors.New("dependency failed")
	// ErrNoCapacity indicates the admission budget elapsed with no free slot.
	ErrNoCapacity = errors.New("no capacity")
)

// Registry maps task ids to their handles. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	handles map[uint32]*Handle
	running int
	changed chan struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		handles: make(map[uint32]*Handle),
		changed: make(chan struct{}),
	}
}

// broadcast wakes every waiter. Must be called with mu held.
func (r *Registry) broadcast() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Launch stores h under id and counts it as running. Callers launch each id
// at most once. Relaunching an unfinished id replaces the earlier handle: a
// later Complete(id) finishes the new handle, and the replaced handle's Done
// channel never closes.
func (r *Registry) Launch(id uint32, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.handles[id]; ok && !prev.finished {
		r.running--
	}
	h.launchedAt = time.Now()
	r.handles[id] = h
	if !h.finished {
		r.running++
	}
	r.broadcast()
}

// Start records that id's payload began executing.
func (r *Registry) Start(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return fmt.Errorf("registry: start %d: %w", id, ErrNotLaunched)
	}
	h.startedAt = time.Now()
	r.broadcast()
	return nil
}

// Complete finishes id's handle with err, closing its done channel and waking
// every waiter.
func (r *Registry) Complete(id uint32, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return fmt.Errorf("registry: complete %d: %w", id, ErrNotLaunched)
	}
	if h.finished {
		return fmt.Errorf("registry: complete %d: %w", id, ErrAlreadyCompleted)
	}
	h.err = err
	h.finished = true
	h.finishedAt = time.Now()
	close(h.done)
	r.running--
	r.broadcast()
	return nil
}

// IsDone reports whether id has completed. Ids never launched are not done.
func (r *Registry) IsDone(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return ok && h.finished
}

// Lookup returns the handle stored for id.
func (r *Registry) Lookup(id uint32) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// RunningCount returns how many launched tasks have not completed yet.
func (r *Registry) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Len returns how many tasks have been launched.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// WaitFor blocks until every id in ids has completed. Ids not launched yet
// are waited for. It returns an error wrapping ErrDependencyFailed as soon as
// one of them is found failed, or ctx.Err() if ctx ends first.
func (r *Registry) WaitFor(ctx context.Context, ids []uint32) error {
	for {
		r.mu.Lock()
		pending := false
		for _, id := range ids {
			h, ok := r.handles[id]
			if !ok || !h.finished {
				pending = true
				continue
			}
			if h.err != nil {
				r.mu.Unlock()
				return fmt.Errorf("%w: task %d: %w", ErrDependencyFailed, id, h.err)
			}
		}
		if !pending {
			r.mu.Unlock()
			return nil
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AwaitCapacity blocks until fewer than limit tasks are running. It returns
// an error wrapping ErrNoCapacity when budget elapses first, or ctx.Err() if
// ctx ends first. A non-positive budget checks once without waiting.
func (r *Registry) AwaitCapacity(ctx context.Context, limit int, budget time.Duration) error {
	var expired <-chan time.Time
	if budget > 0 {
		timer := time.NewTimer(budget)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		r.mu.Lock()
		running := r.running
		ch := r.changed
		r.mu.Unlock()

		if running < limit {
			return nil
		}
		if expired == nil {
			return fmt.Errorf("%w: %d running, limit %d", ErrNoCapacity, running, limit)
		}

		select {
		case <-ch:
		case <-expired:
			return fmt.Errorf("%w: %d running, limit %d, waited %s", ErrNoCapacity, r.RunningCount(), limit, budget)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot returns the status of every launched task, sorted by id.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Running returns the ids of launched, unfinished tasks in ascending order.
func (r *Registry) Running() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint32
	for id, h := range r.handles {
		if !h.finished {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
