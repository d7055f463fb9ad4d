package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
	"github.com/CharanSaiVaddi/scrapectl/internal/orchestrator"
	"github.com/CharanSaiVaddi/scrapectl/internal/state"
	"github.com/CharanSaiVaddi/scrapectl/internal/storage"
	"github.com/CharanSaiVaddi/scrapectl/internal/worker"
)

var errInterrupted = errors.New("run interrupted")

var (
	onlyIDs    string
	skipIDs    string
	onlyFailed bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the selected jobs and print a summary",
	RunE:  runJobs,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&onlyIDs, "only", "", "Comma separated job ids to run (e.g. kia,volvo)")
	f.StringVar(&skipIDs, "skip", "", "Comma separated job ids to skip (e.g. mazda,bmw)")
	f.BoolVar(&onlyFailed, "only-failed", false, "Run only jobs whose last status was failed or timeout")
	f.Int("concurrency", worker.DefaultPoolSize, "Number of jobs run at once (env ORCH_CONCURRENCY)")
	f.Duration("backoff", 0, "Base delay before a retry, doubled on each retry (0 retries immediately)")
	rootCmd.AddCommand(runCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	jobs, err := job.Load(cfg.JobsFile)
	if err != nil {
		return err
	}

	filter := orchestrator.Filter{
		Only:       orchestrator.ParseIDs(onlyIDs),
		Skip:       orchestrator.ParseIDs(skipIDs),
		OnlyFailed: onlyFailed,
	}
	printf(cmd, "[ARGS] only=%v skip=%v only_failed=%v\n", filter.Only, filter.Skip, filter.OnlyFailed)
	printf(cmd, "[JOBS] available=%v\n", job.IDs(jobs))
	if unknown := orchestrator.UnknownIDs(jobs, filter); len(unknown) > 0 {
		slog.Warn("filter names unknown job ids", "ids", unknown)
	}

	var snap state.Snapshot
	if filter.OnlyFailed {
		snap = state.NewStore(filepath.Join(cfg.RunsDir, orchestrator.StateFileName)).Load()
	}
	selected := orchestrator.Select(jobs, filter, snap)
	printf(cmd, "[JOBS] to run=%v\n", job.IDs(selected))
	if len(selected) == 0 {
		printf(cmd, "No jobs to run with these filters.\n")
		return nil
	}

	opts := orchestrator.Options{
		Concurrency: cfg.Concurrency,
		RunsDir:     cfg.RunsDir,
		BaseDir:     cfg.BaseDir,
		KillGrace:   cfg.KillGrace,
		Backoff:     worker.Backoff{Base: cfg.RetryBackoff, Max: cfg.RetryBackoffMax},
	}
	if cfg.HistoryDB != "" {
		hist := storage.NewSQLiteStorage()
		if err := hist.Init(cfg.HistoryDB); err != nil {
			slog.Warn("attempt history disabled", "path", cfg.HistoryDB, "error", err)
		} else {
			defer hist.Close()
			opts.History = hist
		}
	}

	orch, err := orchestrator.New(selected, opts)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			slog.Warn("signal received; stopping jobs", "signal", sig.String())
			orch.StopAll()
		case <-done:
		}
	}()

	results, err := orch.Run(cmd.Context())
	close(done)
	if err != nil {
		return err
	}

	printf(cmd, "\n")
	if err := orchestrator.WriteSummary(cmd.OutOrStdout(), selected, results); err != nil {
		return err
	}
	if orch.Stopped() {
		return errInterrupted
	}
	return nil
}
