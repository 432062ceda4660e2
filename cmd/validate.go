package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/dag"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph-file>",
	Short: "Check a task graph for cycles, self edges and duplicate edges",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	spec, g, err := loadGraph(args[0])
	if err != nil {
		return err
	}

	issues := graphIssues(g)
	newPrinter(cmd).ValidateResult(spec.DisplayName(), g.Len(), issues)
	if len(issues) > 0 {
		return fmt.Errorf("validate %s: %d issue(s)", spec.DisplayName(), len(issues))
	}
	return nil
}

// graphIssues lists everything that would keep tasks from running or make
// the release order surprising.
func graphIssues(g *dag.Graph) []string {
	var issues []string
	for _, id := range g.SelfEdges() {
		issues = append(issues, fmt.Sprintf("task %d depends on itself", id))
	}
	for _, e := range g.DuplicateEdges() {
		issues = append(issues, fmt.Sprintf("duplicate edge %s", e))
	}
	if _, err := g.TopologicalSort(); err != nil {
		issues = append(issues, fmt.Sprintf("%v: tasks %v never reach indegree 0", err, g.Unreachable()))
	}
	return issues
}
