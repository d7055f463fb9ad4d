package main

import (
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
	"github.com/CharanSaiVaddi/scrapectl/internal/orchestrator"
	"github.com/CharanSaiVaddi/scrapectl/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last recorded status of every job",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := state.NewStore(filepath.Join(cfg.RunsDir, orchestrator.StateFileName))
		snap := store.Load()
		if len(snap) == 0 {
			printf(cmd, "No run state recorded in %s\n", store.Path())
			return nil
		}

		ids := make([]string, 0, len(snap))
		for id := range snap {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			printf(cmd, "%s\n", orchestrator.SummaryLine(snap[id]))
		}

		counts := orchestrator.Counts(snap)
		printf(cmd, "\njobs=%d success=%d failed=%d timeout=%d killed=%d running=%d queued=%d\n",
			len(snap), counts[job.StatusSuccess], counts[job.StatusFailed], counts[job.StatusTimeout],
			counts[job.StatusKilled], counts[job.StatusRunning], counts[job.StatusQueued])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
