// Package graphfile reads task graphs from TOML or HCL files and replays them
// into a scheduler.
//
// A graph file lists tasks with the ids they depend on:
//
//	name = "scenario-a"
//
//	[[task]]
//	id = 2
//	depends_on = [0]
//
// or, in HCL:
//
//	name = "scenario-a"
//	task "2" { depends_on = [0] }
//
// Dependencies that are not listed as tasks themselves are registered
// implicitly, the same way Scheduler.AddEdge does.
package graphfile

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for graph file loading.
var (
	// ErrNoTasks indicates a graph file that declares no tasks.
	ErrNoTasks = errors.New("graph file declares no tasks")
	// ErrUnsupportedFormat indicates a file extension other than .toml or .hcl.
	ErrUnsupportedFormat = errors.New("unsupported graph file format")
	// ErrDuplicateTask indicates two task entries share an id.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrInvalidID indicates a task or dependency id outside the uint32 range.
	ErrInvalidID = errors.New("invalid task id")
	// ErrMissingID indicates a task entry without an id.
	ErrMissingID = errors.New("task id missing")
)

// Format names a graph file syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
)

// FormatOf picks the format from path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ValidationError records a graph file problem with source context.
type ValidationError struct {
	SourceFile string
	Task       string // task entry label; empty for file-level problems
	Err        error
}

// Error returns a human-readable string including source file and task context.
func (e *ValidationError) Error() string {
	if e.Task != "" {
		return e.SourceFile + ": task " + e.Task + ": " + e.Err.Error()
	}
	return e.SourceFile + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TaskSpec is one task entry.
type TaskSpec struct {
	ID        uint32
	Name      string
	DependsOn []uint32
}

// Spec is a parsed graph file.
type Spec struct {
	Name   string
	Path   string
	Format Format
	Digest string
	Tasks  []TaskSpec
}

// Builder receives the graph. *scheduler.Scheduler satisfies it.
type Builder interface {
	AddTask(id uint32) error
	AddEdge(taskID, dependsOn uint32) error
}

// Apply replays the spec into b in file order: each task is added, followed by
// one edge per listed dependency.
func (s *Spec) Apply(b Builder) error {
	for _, t := range s.Tasks {
		if err := b.AddTask(t.ID); err != nil {
			return fmt.Errorf("graphfile: apply task %d: %w", t.ID, err)
		}
		for _, dep := range t.DependsOn {
			if err := b.AddEdge(t.ID, dep); err != nil {
				return fmt.Errorf("graphfile: apply edge %d<-%d: %w", t.ID, dep, err)
			}
		}
	}
	return nil
}

// EdgeCount returns the number of dependency edges, duplicates included.
func (s *Spec) EdgeCount() int {
	n := 0
	for _, t := range s.Tasks {
		n += len(t.DependsOn)
	}
	return n
}

// DisplayName returns Name, falling back to the file name without extension.
func (s *Spec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads and parses the graph file at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphfile: read %s: %w", path, err)
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, &ValidationError{SourceFile: path, Err: err}
	}
	spec, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	spec.Digest = digest(data)
	return spec, nil
}

// Parse decodes data in the given format. filename is used in diagnostics.
func Parse(data []byte, format Format, filename string) (*Spec, error) {
	var (
		spec *Spec
		err  error
	)
	switch format {
	case FormatTOML:
		spec, err = parseTOML(data, filename)
	case FormatHCL:
		spec, err = parseHCL(data, filename)
	default:
		return nil, &ValidationError{SourceFile: filename, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)}
	}
	if err != nil {
		return nil, err
	}
	spec.Path = filename
	spec.Format = format
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *Spec) validate() error {
	if len(s.Tasks) == 0 {
		return &ValidationError{SourceFile: s.Path, Err: ErrNoTasks}
	}
	seen := make(map[uint32]bool, len(s.Tasks))
	for _, t := range s.Tasks {
		if seen[t.ID] {
			return &ValidationError{SourceFile: s.Path, Task: fmt.Sprint(t.ID), Err: ErrDuplicateTask}
		}
		seen[t.ID] = true
	}
	return nil
}

// toID converts a decoded integer to a task id.
func toID(v int64, file, task string) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, &ValidationError{SourceFile: file, Task: task, Err: fmt.Errorf("%w: %d", ErrInvalidID, v)}
	}
	return uint32(v), nil
}

func toIDs(vs []int64, file, task string) ([]uint32, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	out := make([]uint32, len(vs))
	for i, v := range vs {
		id, err := toID(v, file, task)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
