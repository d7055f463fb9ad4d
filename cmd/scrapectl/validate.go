package main

import (
	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the jobs file without running anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := job.Load(cfg.JobsFile)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			printf(cmd, "%s\ttimeout=%ds retries=%d cmd=%s\n", j.ID, j.TimeoutSeconds, j.MaxRetries, j.CommandLine())
		}
		printf(cmd, "%s: %d jobs OK\n", cfg.JobsFile, len(jobs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
