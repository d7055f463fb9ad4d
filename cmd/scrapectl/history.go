package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/scrapectl/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history <job-id>",
	Short: "List every recorded attempt of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.HistoryDB == "" {
			return fmt.Errorf("attempt history is disabled (history_db is empty)")
		}
		if _, err := os.Stat(cfg.HistoryDB); err != nil {
			return fmt.Errorf("no attempt history at %s: %w", cfg.HistoryDB, err)
		}
		store := storage.NewSQLiteStorage()
		if err := store.Init(cfg.HistoryDB); err != nil {
			return fmt.Errorf("open attempt history: %w", err)
		}
		defer store.Close()

		rows, err := store.ListByJob(args[0])
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			printf(cmd, "No attempts recorded for %s\n", args[0])
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tRUN\tATTEMPT\tSTATUS\tRC\tDURATION\tERROR")
		for _, a := range rows {
			rc := "-"
			if a.ReturnCode != nil {
				rc = fmt.Sprintf("%d", *a.ReturnCode)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				a.StartedAt.Local().Format("2006-01-02 15:04:05"), shortID(a.RunID), a.Attempt, a.Status, rc, a.Duration().Round(100*time.Millisecond), a.Error)
		}
		return tw.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
