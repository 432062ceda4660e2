package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/graphfile"
	"github.com/papapumpkin/pulsar/internal/scheduler"
	"github.com/papapumpkin/pulsar/internal/ui"
)

var planCmd = &cobra.Command{
	Use:   "plan <graph-file>",
	Short: "Show indegrees, release order and tracks of a task graph",
	Long: `Prints every task's indegree, the order the scheduler would release tasks
in, and the independent tracks of the graph, without running anything.

With --json, prints the indegree map as JSON on stdout instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().Int("max-concurrent", 0, "override the concurrency bound")
	planCmd.Flags().Bool("json", false, "print the indegree map as JSON")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("max-concurrent") {
		cfg.MaxConcurrent, _ = cmd.Flags().GetInt("max-concurrent")
	}

	spec, err := graphfile.Load(args[0])
	if err != nil {
		return err
	}
	s := scheduler.New(schedulerOptions(cfg)...)
	if err := spec.Apply(s); err != nil {
		return fmt.Errorf("apply %s: %w", spec.Path, err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeIndegreesJSON(cmd.OutOrStdout(), s.Indegrees())
	}

	newPrinter(cmd).Plan(ui.PlanView{
		Name:          spec.DisplayName(),
		Graph:         s.Graph(),
		MaxConcurrent: s.MaxConcurrent,
		Budget:        s.Budget(),
	})
	return nil
}

// writeIndegreesJSON writes indegrees as a JSON object keyed by task id.
func writeIndegreesJSON(w io.Writer, indegrees map[uint32]int) error {
	out := make(map[string]int, len(indegrees))
	for id, n := range indegrees {
		out[strconv.FormatUint(uint64(id), 10)] = n
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode indegrees: %w", err)
	}
	return nil
}
