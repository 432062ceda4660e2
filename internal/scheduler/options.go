package scheduler

import (
	"io"
	"time"

	"github.com/papapumpkin/pulsar/internal/task"
	"github.com/papapumpkin/pulsar/internal/telemetry"
)

// Admission defaults. The budget before an overload abort is
// DefaultAdmissionInterval * DefaultAdmissionRetries.
const (
	DefaultMaxConcurrent     = 4
	DefaultAdmissionInterval = 100 * time.Millisecond
	DefaultAdmissionRetries  = 1000
)

// PayloadFactory builds the payload for a task id at release time.
type PayloadFactory func(id uint32) task.Payload

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent sets the admission bound on simultaneously running tasks.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) { s.MaxConcurrent = n }
}

// WithAdmission sets the admission check interval and how many intervals the
// release loop waits for a free slot before aborting the run.
func WithAdmission(interval time.Duration, retries int) Option {
	return func(s *Scheduler) {
		s.AdmissionInterval = interval
		s.AdmissionRetries = retries
	}
}

// WithPayloadFactory sets the factory that builds each task's payload.
func WithPayloadFactory(f PayloadFactory) Option {
	return func(s *Scheduler) { s.Payloads = f }
}

// WithLogger sets the progress log writer. nil means os.Stderr.
func WithLogger(w io.Writer) Option {
	return func(s *Scheduler) { s.Logger = w }
}

// WithEmitter enables telemetry events for the run.
func WithEmitter(e *telemetry.Emitter) Option {
	return func(s *Scheduler) { s.Emitter = e }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(s *Scheduler) { s.RunID = id }
}
