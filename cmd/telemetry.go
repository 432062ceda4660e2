package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/telemetry"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "View JSONL telemetry events for a run",
	Long: `Reads and formats the JSONL telemetry file for the given or latest run.

Without --run, discovers the most recent telemetry file.
With --follow (-f), keeps printing new events until the run finishes.`,
	RunE: runTelemetry,
}

func init() {
	telemetryCmd.Flags().String("run", "", "run ID to view (default: most recent)")
	telemetryCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	rootCmd.AddCommand(telemetryCmd)
}

func runTelemetry(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	runID, _ := cmd.Flags().GetString("run")
	follow, _ := cmd.Flags().GetBool("follow")

	path, err := resolveTelemetryPath(cfg.TelemetryDir, runID)
	if err != nil {
		return err
	}
	printer := newPrinter(cmd)
	printer.Info("run " + telemetry.RunID(path))

	if follow {
		ctx, cancel := setupSignalContext(cmd.Context(), printer)
		defer cancel()
		return telemetry.Follow(ctx, path, printer.Event)
	}

	events, err := telemetry.ReadFile(path)
	if err != nil {
		return err
	}
	for _, ev := range events {
		printer.Event(ev)
	}
	return nil
}

// resolveTelemetryPath finds the JSONL file for runID in dir, or the most
// recent one when runID is empty.
func resolveTelemetryPath(dir, runID string) (string, error) {
	if runID == "" {
		return telemetry.Latest(dir)
	}
	path := telemetry.Path(dir, runID)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("telemetry: no file for run %q: %w", runID, err)
	}
	return path, nil
}
