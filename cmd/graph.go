package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/dag"
	"github.com/papapumpkin/pulsar/internal/graphfile"
	"github.com/papapumpkin/pulsar/internal/scheduler"
	"github.com/papapumpkin/pulsar/internal/ui"
)

// graphBuilder adapts a dag.Graph to graphfile.Builder.
type graphBuilder struct {
	g *dag.Graph
}

func (b graphBuilder) AddTask(id uint32) error {
	b.g.AddTask(id)
	return nil
}

func (b graphBuilder) AddEdge(taskID, dependsOn uint32) error {
	b.g.AddEdge(taskID, dependsOn)
	return nil
}

// loadGraph parses the graph file at path into a fresh dag.Graph.
func loadGraph(path string) (*graphfile.Spec, *dag.Graph, error) {
	spec, err := graphfile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	g := dag.New()
	if err := spec.Apply(graphBuilder{g: g}); err != nil {
		return nil, nil, fmt.Errorf("apply %s: %w", path, err)
	}
	return spec, g, nil
}

// schedulerOptions maps configuration onto scheduler options.
func schedulerOptions(cfg config.Config) []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithMaxConcurrent(cfg.MaxConcurrent),
		scheduler.WithAdmission(cfg.AdmissionInterval, cfg.AdmissionRetries),
	}
}

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext(parent context.Context, printer *ui.Printer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			printer.Info("\nshutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
