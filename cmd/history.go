package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the history database",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 10, "number of runs to show")
	historyCmd.Flags().String("run", "", "show a single run by id")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := history.Open(cmd.Context(), cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	var runs []history.Run
	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		r, err := store.Get(cmd.Context(), runID)
		if err != nil {
			return err
		}
		runs = []history.Run{r}
	} else {
		n, _ := cmd.Flags().GetInt("limit")
		if runs, err = store.Recent(cmd.Context(), n); err != nil {
			return err
		}
	}

	newPrinter(cmd).History(runs, time.Now())
	return nil
}
