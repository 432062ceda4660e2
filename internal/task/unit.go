// Package task defines the unit of work the scheduler launches: a task id,
// its dependency ids, and the activation that waits for those dependencies
// before running a payload.
package task

import (
	"context"
	"fmt"

	"github.com/papapumpkin/pulsar/internal/registry"
)

// Payload is the work a task performs once its dependencies have completed.
type Payload func(ctx context.Context) error

// Launcher starts an activation asynchronously. It is satisfied by
// *pool.ContextPool from github.com/sourcegraph/conc.
type Launcher interface {
	Go(f func(ctx context.Context) error)
}

// Unit is one schedulable task.
type Unit struct {
	ID   uint32
	Deps []uint32
}

// New creates a Unit, copying deps.
func New(id uint32, deps []uint32) Unit {
	return Unit{ID: id, Deps: append([]uint32(nil), deps...)}
}

// Activate registers a fresh handle for u in reg and hands the activation to
// launcher. The activation waits on reg for every dependency, runs payload
// unless a dependency failed or ctx ended, and then completes the handle.
// The handle is launched before submission so it is visible to
// RunningCount and WaitFor immediately. Activate never blocks on the
// activation itself.
func (u Unit) Activate(ctx context.Context, payload Payload, reg *registry.Registry, launcher Launcher) *registry.Handle {
	id := u.ID
	deps := append([]uint32(nil), u.Deps...)

	h := registry.NewHandle(id)
	reg.Launch(id, h)

	launcher.Go(func(context.Context) error {
		err := run(ctx, id, deps, payload, reg)
		if cerr := reg.Complete(id, err); cerr != nil {
			return cerr
		}
		return err
	})
	return h
}

func run(ctx context.Context, id uint32, deps []uint32, payload Payload, reg *registry.Registry) (err error) {
	if err := reg.WaitFor(ctx, deps); err != nil {
		return err
	}
	if err := reg.Start(id); err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("payload panic: %v", r)
		}
	}()
	return payload(ctx)
}
