package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/graphfile"
	"github.com/papapumpkin/pulsar/internal/history"
	"github.com/papapumpkin/pulsar/internal/registry"
	"github.com/papapumpkin/pulsar/internal/scheduler"
	"github.com/papapumpkin/pulsar/internal/telemetry"
	"github.com/papapumpkin/pulsar/internal/ui"
	"github.com/papapumpkin/pulsar/internal/workload"
)

// progressInterval is how often the progress line is refreshed.
const progressInterval = 200 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run <graph-file>",
	Short: "Schedule a task graph with the simulated workload",
	Long: `Loads a TOML or HCL task graph, releases its tasks in dependency order and
waits for every payload. The simulated payload for task N sleeps N workload
units (plus slow_units for the ids in slow_ids) and then appends N to the
shared output, so the printed output is the completion order.

Exits non-zero when the run is overloaded.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("max-concurrent", 0, "override the concurrency bound")
	runCmd.Flags().Duration("unit", 0, "override the workload unit")
	runCmd.Flags().Bool("watch", false, "re-run whenever the graph file changes")
	runCmd.Flags().Bool("no-history", false, "do not record the run in the history database")
	runCmd.Flags().Bool("no-telemetry", false, "do not write a telemetry file")

	rootCmd.AddCommand(runCmd)
}

// runOptions carries the per-invocation switches of the run command.
type runOptions struct {
	cfg         config.Config
	path        string
	noTelemetry bool
	store       *history.Store // nil when history is disabled
	logger      io.Writer
	progress    bool
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyRunFlags(cmd, &cfg)

	printer := newPrinter(cmd)
	ctx, cancel := setupSignalContext(cmd.Context(), printer)
	defer cancel()

	opts := runOptions{
		cfg:      cfg,
		path:     args[0],
		logger:   io.Discard,
		progress: !cfg.Verbose,
	}
	opts.noTelemetry, _ = cmd.Flags().GetBool("no-telemetry")
	if cfg.Verbose {
		opts.logger = cmd.ErrOrStderr()
	}
	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		store, err := history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.store = store
	}

	loader, err := graphfile.NewLoader(graphfile.DefaultCacheSize)
	if err != nil {
		return err
	}

	printer.Banner()
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		return watchAndRun(ctx, loader, printer, opts)
	}
	return runOnce(ctx, loader, printer, opts)
}

// applyRunFlags applies CLI flag values to the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("max-concurrent") {
		cfg.MaxConcurrent, _ = cmd.Flags().GetInt("max-concurrent")
	}
	if v, _ := cmd.Flags().GetDuration("unit"); v > 0 {
		cfg.Workload.Unit = v
	}
}

// runOnce loads the graph, schedules it, waits for every payload and
// records the outcome. It returns an error for overloaded or canceled runs
// and for payload failures.
func runOnce(ctx context.Context, loader *graphfile.Loader, printer *ui.Printer, opts runOptions) error {
	spec, err := loader.Load(opts.path)
	if err != nil {
		return err
	}

	state := &workload.State{}
	sim := &workload.Sim{
		Unit:      opts.cfg.Workload.Unit,
		SlowIDs:   opts.cfg.Workload.SlowIDs,
		SlowUnits: opts.cfg.Workload.SlowUnits,
		State:     state,
	}
	s := scheduler.New(append(schedulerOptions(opts.cfg),
		scheduler.WithPayloadFactory(sim.Payload),
		scheduler.WithLogger(opts.logger),
	)...)

	if !opts.noTelemetry {
		em, err := telemetry.NewEmitter(telemetry.Path(opts.cfg.TelemetryDir, s.RunID))
		if err != nil {
			return err
		}
		defer em.Close()
		s.Emitter = em
	}

	if err := spec.Apply(s); err != nil {
		return fmt.Errorf("apply %s: %w", spec.Path, err)
	}
	printer.RunStart(spec.DisplayName(), s.RunID, s.Graph().Len(), s.MaxConcurrent, s.Budget())

	stopProgress := func() {}
	if opts.progress {
		stopProgress = showProgress(printer, s.Registry(), s.Graph().Len())
	}
	_, schedErr := s.Schedule(ctx)
	waitErr := s.Wait(ctx)
	if ctx.Err() != nil {
		// The run context is already canceled; drain the pool.
		waitErr = s.Wait(context.WithoutCancel(ctx))
	}
	stopProgress()

	output := state.Get()
	printer.RunResult(s.State(), s.Report(), output)
	printer.TaskFailures(s.Registry().Snapshot())
	if schedErr != nil {
		printer.RunError(schedErr)
	}

	runErr := runOutcome(schedErr, waitErr)
	if opts.store != nil {
		if err := opts.store.Record(context.WithoutCancel(ctx), historyRun(spec, s, output, runErr, schedErr)); err != nil {
			printer.Error(err.Error())
		}
	}
	return runErr
}

// runOutcome decides the command's result. Dangling tasks are reported but
// do not fail the run.
func runOutcome(schedErr, waitErr error) error {
	switch {
	case schedErr != nil && !errors.Is(schedErr, scheduler.ErrDanglingTasks):
		return schedErr
	case waitErr != nil:
		return fmt.Errorf("run: %w", waitErr)
	}
	return nil
}

// historyRun converts a finished scheduler into a history record.
func historyRun(spec *graphfile.Spec, s *scheduler.Scheduler, output string, runErr, schedErr error) history.Run {
	r := s.Report()
	run := history.Run{
		RunID:         r.RunID,
		Graph:         spec.DisplayName(),
		State:         string(s.State()),
		Tasks:         r.Tasks,
		Released:      r.Released,
		Unreleased:    r.Unreleased,
		MaxConcurrent: r.MaxConcurrent,
		Output:        output,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	switch {
	case runErr != nil:
		run.Error = runErr.Error()
	case schedErr != nil:
		run.Error = schedErr.Error()
	}
	return run
}

// showProgress refreshes the progress line until the returned stop function
// is called.
func showProgress(printer *ui.Printer, reg *registry.Registry, total int) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				finished := 0
				for _, st := range reg.Snapshot() {
					if st.Phase == registry.PhaseDone || st.Phase == registry.PhaseFailed {
						finished++
					}
				}
				printer.Progress(finished, total, reg.RunningCount())
			}
		}
	}()
	return func() {
		close(done)
		<-exited
		printer.ProgressDone()
	}
}

// watchAndRun runs the graph, then re-runs it whenever its content changes
// until ctx ends. Run errors are printed and do not stop watching.
func watchAndRun(ctx context.Context, loader *graphfile.Loader, printer *ui.Printer, opts runOptions) error {
	w, err := graphfile.NewWatcher(opts.path)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	run := func() {
		if err := runOnce(ctx, loader, printer, opts); err != nil && ctx.Err() == nil {
			printer.Error(err.Error())
		}
	}

	run()
	printer.Info("watching " + w.Path + " (ctrl-c to stop)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-w.Changes:
			if !ok {
				return nil
			}
			changed, err := loader.Changed(opts.path)
			if err != nil {
				printer.Error(err.Error())
				continue
			}
			if !changed {
				continue
			}
			printer.Info("graph changed, re-running")
			run()
		}
	}
}
