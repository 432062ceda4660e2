// Package scheduler releases tasks in dependency order under a bound on how
// many may run at once.
//
// The caller builds a graph with AddEdge/AddTask, then calls Schedule (or
// Run). Schedule walks the graph with Kahn's algorithm on the calling
// goroutine: roots are released in ascending id order, newly freed tasks are
// appended to a FIFO queue in discovery order, and every release first waits
// for admission. Released tasks run asynchronously on a conc context pool;
// each activation waits on the registry for its parents before running its
// payload.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/papapumpkin/pulsar/internal/dag"
	"github.com/papapumpkin/pulsar/internal/registry"
	"github.com/papapumpkin/pulsar/internal/task"
	"github.com/papapumpkin/pulsar/internal/telemetry"
)

// Scheduler owns the dependency graph, the task registry and the execution
// pool for a single run. A Scheduler is single-use.
type Scheduler struct {
	MaxConcurrent     int
	AdmissionInterval time.Duration
	AdmissionRetries  int
	Payloads          PayloadFactory     // nil = no-op payloads
	Logger            io.Writer          // optional; nil = os.Stderr
	Emitter           *telemetry.Emitter // optional; nil = no telemetry
	RunID             string

	mu     sync.Mutex
	state  State
	graph  *dag.Graph
	reg    *registry.Registry
	pool   *pool.ContextPool
	cancel context.CancelFunc
	report *Report

	waitOnce sync.Once
	waitDone chan struct{}
	waitErr  error
}

// New creates a Scheduler in the Building state with default admission
// settings, then applies opts.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		MaxConcurrent:     DefaultMaxConcurrent,
		AdmissionInterval: DefaultAdmissionInterval,
		AdmissionRetries:  DefaultAdmissionRetries,
		RunID:             uuid.NewString(),
		state:             StateBuilding,
		graph:             dag.New(),
		reg:               registry.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// logger returns the effective log writer (os.Stderr if Logger is nil).
func (s *Scheduler) logger() io.Writer {
	if s.Logger != nil {
		return s.Logger
	}
	return os.Stderr
}

func (s *Scheduler) logf(format string, args ...any) {
	fmt.Fprintf(s.logger(), "Scheduler: "+format+"\n", args...)
}

func (s *Scheduler) emit(kind string, id *uint32, data any) {
	if err := s.Emitter.Emit(telemetry.Event{
		Kind:   kind,
		RunID:  s.RunID,
		TaskID: id,
		Data:   data,
	}); err != nil {
		s.logf("telemetry: %v", err)
	}
}

// AddEdge records that taskID depends on dependsOn.
func (s *Scheduler) AddEdge(taskID, dependsOn uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBuilding {
		return fmt.Errorf("add edge %d<-%d: %w", taskID, dependsOn, ErrNotBuilding)
	}
	s.graph.AddEdge(taskID, dependsOn)
	return nil
}

// AddTask registers a task with no dependencies.
func (s *Scheduler) AddTask(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBuilding {
		return fmt.Errorf("add task %d: %w", id, ErrNotBuilding)
	}
	s.graph.AddTask(id)
	return nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Registry returns the run's task registry, for status inspection.
func (s *Scheduler) Registry() *registry.Registry {
	return s.reg
}

// Indegrees returns each task's current unresolved dependency count. Call it
// before Schedule or after Schedule returns.
func (s *Scheduler) Indegrees() map[uint32]int {
	return s.graph.Indegrees()
}

// Graph returns the underlying dependency graph. Call it before Schedule or
// after Schedule returns.
func (s *Scheduler) Graph() *dag.Graph {
	return s.graph
}

// Report returns the run report, or nil before Schedule.
func (s *Scheduler) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Budget returns how long a release may wait for admission before the run is
// declared overloaded.
func (s *Scheduler) Budget() time.Duration {
	return s.AdmissionInterval * time.Duration(s.AdmissionRetries)
}

// Run schedules every task and reports whether scheduling finished without
// an overload abort. Dangling tasks do not make Run fail; use Schedule to
// see them. Run does not wait for payloads to finish; see Wait. The run
// context is released once every launched payload has ended, whether or not
// Wait is called.
func (s *Scheduler) Run(ctx context.Context) bool {
	_, err := s.Schedule(ctx)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrDanglingTasks) {
		s.logf("%v", err)
		return true
	}
	s.logf("%v", err)
	return false
}

// Schedule drains the graph, launching every task once all its dependencies
// were released and a concurrency slot is free. It returns once every
// reachable task has been launched, without waiting for payloads.
//
// Errors: *OverloadError when admission times out (the run context handed to
// payloads is canceled), *DanglingError when some tasks never became ready,
// ctx.Err() wrapped when ctx ends during the release loop.
func (s *Scheduler) Schedule(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	if s.state != StateBuilding {
		s.mu.Unlock()
		return nil, fmt.Errorf("schedule: %w", ErrNotBuilding)
	}
	s.state = StateDraining
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pool = pool.New().WithErrors().WithContext(runCtx)
	s.report = &Report{
		RunID:         s.RunID,
		MaxConcurrent: s.MaxConcurrent,
		Tasks:         s.graph.Len(),
		StartedAt:     time.Now(),
	}
	report := s.report
	s.mu.Unlock()

	s.emit(telemetry.KindRunStart, nil, map[string]any{
		"tasks":          report.Tasks,
		"max_concurrent": s.MaxConcurrent,
		"budget":         s.Budget().String(),
	})

	budget := s.Budget()
	queue := s.graph.InitialReadyTasks()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		s.emit(telemetry.KindTaskReleased, telemetry.Task(id), map[string]int{"queue": len(queue)})

		if running := s.reg.RunningCount(); running >= s.MaxConcurrent {
			report.AdmissionWaits++
			s.emit(telemetry.KindAdmissionWait, telemetry.Task(id), map[string]int{"running": running})
		}
		if err := s.reg.AwaitCapacity(ctx, s.MaxConcurrent, budget); err != nil {
			err = s.abort(id, budget, err)
			s.drain()
			return report, err
		}

		unit := task.New(id, s.graph.Dependencies(id))
		unit.Activate(runCtx, s.payload(id), s.reg, tracedLauncher{s: s, id: id})
		report.Released = append(report.Released, id)

		running := s.reg.RunningCount()
		if running > report.PeakRunning {
			report.PeakRunning = running
		}
		s.emit(telemetry.KindTaskLaunched, telemetry.Task(id), map[string]int{"running": running})

		freed := s.graph.ReleaseDependents(id)
		queue = append(queue, freed...)
		s.logf("released task %d (queue=%d, running=%d)", id, len(queue), running)
	}

	s.setState(StateCompleted)
	report.ScheduledAt = time.Now()
	report.Unreleased = s.graph.Unreleased()
	if len(report.Unreleased) > 0 {
		s.emit(telemetry.KindDangling, nil, map[string][]uint32{"tasks": report.Unreleased})
		s.drain()
		return report, &DanglingError{Tasks: report.Unreleased}
	}
	s.drain()
	return report, nil
}

// abort ends the release loop after an admission failure for id. Running
// and pending ids are captured before the run context is canceled.
func (s *Scheduler) abort(id uint32, budget time.Duration, err error) error {
	running := s.reg.Running()
	pending := s.neverLaunched()
	s.cancel()
	s.report.ScheduledAt = time.Now()
	s.report.Unreleased = pending

	if !errors.Is(err, registry.ErrNoCapacity) {
		s.setState(StateCanceled)
		return fmt.Errorf("schedule: admission for task %d: %w", id, err)
	}

	s.setState(StateOverloaded)
	oe := &OverloadError{
		Task:    id,
		Budget:  budget,
		Running: running,
		Pending: pending,
		Err:     err,
	}
	s.emit(telemetry.KindOverload, telemetry.Task(id), map[string]any{
		"running": oe.Running,
		"pending": oe.Pending,
	})
	s.logf("overloaded: task %d waited %s with %d running", id, budget, len(running))
	return oe
}

// neverLaunched returns every task without a registry handle, ascending.
func (s *Scheduler) neverLaunched() []uint32 {
	var ids []uint32
	for _, id := range s.graph.Tasks() {
		if _, ok := s.reg.Lookup(id); !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// payload builds id's payload and wraps it to emit task_started.
func (s *Scheduler) payload(id uint32) task.Payload {
	var inner task.Payload
	if s.Payloads != nil {
		inner = s.Payloads(id)
	}
	return func(ctx context.Context) error {
		s.emit(telemetry.KindTaskStarted, telemetry.Task(id), nil)
		if inner == nil {
			return nil
		}
		return inner(ctx)
	}
}

// tracedLauncher submits one task's activation to the run pool and emits
// task_done when it ends.
type tracedLauncher struct {
	s  *Scheduler
	id uint32
}

func (l tracedLauncher) Go(f func(ctx context.Context) error) {
	l.s.pool.Go(func(ctx context.Context) error {
		err := f(ctx)
		data := map[string]string{"status": "ok"}
		if err != nil {
			data = map[string]string{"status": "failed", "error": err.Error()}
		}
		l.s.emit(telemetry.KindTaskDone, telemetry.Task(l.id), data)
		return err
	})
}

// Wait blocks until every launched activation has ended, or ctx ends. Call
// it after Schedule returns. It returns the joined task errors, each
// prefixed with its task id. Wait may be called more than once. FinishedAt
// and the run_done event are recorded when the pool drains, even if Wait is
// never called.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	p := s.pool
	s.mu.Unlock()
	if p == nil {
		return nil
	}

	s.drain()
	select {
	case <-s.waitDone:
		return s.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain starts, once, the goroutine that waits for the pool and then calls
// finish. Schedule calls it after its last submission.
func (s *Scheduler) drain() {
	s.waitOnce.Do(func() {
		s.waitDone = make(chan struct{})
		go func() {
			defer close(s.waitDone)
			poolErr := s.pool.Wait()
			s.waitErr = s.finish(poolErr)
		}()
	})
}

// finish records the outcome once the pool drained and releases the run
// context.
func (s *Scheduler) finish(poolErr error) error {
	var errs []error
	var failed []uint32
	for _, st := range s.reg.Snapshot() {
		if st.Err != nil {
			failed = append(failed, st.ID)
			errs = append(errs, fmt.Errorf("task %d: %w", st.ID, st.Err))
		}
	}

	s.cancel()
	s.mu.Lock()
	s.report.FinishedAt = time.Now()
	s.report.Failed = failed
	state := s.state
	s.mu.Unlock()

	s.emit(telemetry.KindRunDone, nil, map[string]any{
		"state":    string(state),
		"released": len(s.report.Released),
		"failed":   failed,
	})

	if len(errs) == 0 {
		return poolErr
	}
	return errors.Join(errs...)
}
