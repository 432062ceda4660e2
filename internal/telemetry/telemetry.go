// Package telemetry provides a JSONL event stream for recording what happens
// during a scheduler run. Every release, admission wait, launch, payload start
// and completion is recorded as a structured JSON event, one file per run, so
// runs can be audited and replayed after the fact.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindRunStart      = "run_start"
	KindTaskReleased  = "task_released"
	KindAdmissionWait = "admission_wait"
	KindTaskLaunched  = "task_launched"
	KindTaskStarted   = "task_started"
	KindTaskDone      = "task_done"
	KindOverload      = "overload"
	KindDangling      = "dangling"
	KindRunDone       = "run_done"
)

// Event represents a single telemetry record. Each event carries a timestamp,
// a kind tag, the run it belongs to and optionally a task id, along with
// arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run,omitempty"`
	TaskID    *uint32   `json:"task,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Task returns a pointer to id for use as Event.TaskID.
func Task(id uint32) *uint32 {
	return &id
}

// Path returns the JSONL file for runID inside dir.
func Path(dir, runID string) string {
	return filepath.Join(dir, runID+".jsonl")
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. Parent directories and the file are created if needed; an existing
// file is appended to.
func NewEmitter(path string) (*Emitter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes a single event. A zero Timestamp is filled with the current
// time. Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
