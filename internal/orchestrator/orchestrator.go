// Package orchestrator runs a set of scraper jobs on a bounded worker pool,
// keeps the run-state snapshot current and stops everything on request.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
	"github.com/CharanSaiVaddi/scrapectl/internal/runner"
	"github.com/CharanSaiVaddi/scrapectl/internal/state"
	"github.com/CharanSaiVaddi/scrapectl/internal/worker"
)

const (
	StateFileName = "state.json"
	LogDirName    = "logs"

	stopPollInterval = 50 * time.Millisecond
)

type Options struct {
	Concurrency int
	RunsDir     string
	BaseDir     string
	KillGrace   time.Duration
	Backoff     worker.Backoff
	History     runner.AttemptRecorder
}

type Orchestrator struct {
	jobs  []job.Job
	opts  Options
	runID string
	store *state.Store

	stopOnce sync.Once
	stop     chan struct{}

	mu    sync.Mutex
	procs map[string]*os.Process
}

// New prepares an orchestrator for jobs. The runs directory and its log
// directory are created if missing.
func New(jobs []job.Job, opts Options) (*Orchestrator, error) {
	if err := job.ValidateAll(jobs); err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RunsDir == "" {
		opts.RunsDir = "runs"
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = runner.DefaultKillGrace
	}
	if opts.BaseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve base directory: %w", err)
		}
		opts.BaseDir = wd
	}
	if err := os.MkdirAll(filepath.Join(opts.RunsDir, LogDirName), 0755); err != nil {
		return nil, fmt.Errorf("create runs directory: %w", err)
	}

	return &Orchestrator{
		jobs:  jobs,
		opts:  opts,
		runID: uuid.NewString(),
		store: state.NewStore(filepath.Join(opts.RunsDir, StateFileName)),
		stop:  make(chan struct{}),
		procs: make(map[string]*os.Process),
	}, nil
}

func (o *Orchestrator) RunID() string { return o.runID }

func (o *Orchestrator) Store() *state.Store { return o.store }

// Run executes every job and returns the final snapshot entries for them.
// Individual job failures are reported in the results, not as an error.
func (o *Orchestrator) Run(ctx context.Context) (map[string]job.Result, error) {
	if err := o.store.Seed(job.IDs(o.jobs)); err != nil {
		return nil, fmt.Errorf("seed run state: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()
	if o.Stopped() {
		cancel()
	}

	r := &runner.Runner{
		BaseDir:   o.opts.BaseDir,
		LogDir:    filepath.Join(o.opts.RunsDir, LogDirName),
		KillGrace: o.opts.KillGrace,
		RunID:     o.runID,
		State:     o.store,
		History:   o.opts.History,
		Tracker:   o,
	}
	pool := &worker.Pool{
		Size:    o.opts.Concurrency,
		Retrier: &worker.Retrier{Runner: r, Backoff: o.opts.Backoff},
		State:   o.store,
	}

	slog.Info("run started", "run_id", o.runID, "jobs", len(o.jobs), "concurrency", o.opts.Concurrency)
	start := time.Now()
	outcomes := pool.Run(runCtx, o.jobs)
	slog.Info("run finished", "run_id", o.runID, "processed", len(outcomes), "elapsed", time.Since(start).Round(time.Millisecond))

	snap := o.store.Snapshot()
	results := make(map[string]job.Result, len(o.jobs))
	for _, j := range o.jobs {
		if res, ok := snap[j.ID]; ok {
			results[j.ID] = res
		} else {
			results[j.ID] = job.Queued(j.ID)
		}
	}
	return results, nil
}

// Stopped reports whether StopAll has been called.
func (o *Orchestrator) Stopped() bool {
	select {
	case <-o.stop:
		return true
	default:
		return false
	}
}

// StopAll stops the run: no new jobs or attempts start, running children
// get SIGTERM and are killed if they outlive the grace period. Safe to call
// more than once and when nothing is running.
func (o *Orchestrator) StopAll() {
	first := false
	o.stopOnce.Do(func() {
		first = true
		close(o.stop)
	})
	if first {
		slog.Warn("stop requested, terminating running jobs", "run_id", o.runID)
	}

	for id, p := range o.live() {
		if err := runner.Terminate(p); err != nil {
			slog.Debug("terminate job process", "job", id, "error", err)
		}
	}

	deadline := time.Now().Add(o.opts.KillGrace)
	for time.Now().Before(deadline) && len(o.live()) > 0 {
		time.Sleep(stopPollInterval)
	}

	for id, p := range o.live() {
		slog.Warn("killing job process after grace period", "job", id, "pid", p.Pid)
		if err := runner.Kill(p); err != nil {
			slog.Debug("kill job process", "job", id, "error", err)
		}
	}
}

// Track registers the child process of a running attempt.
func (o *Orchestrator) Track(jobID string, p *os.Process) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.procs[jobID] = p
}

// Untrack forgets the child process once its attempt has concluded.
func (o *Orchestrator) Untrack(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.procs, jobID)
}

func (o *Orchestrator) live() map[string]*os.Process {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]*os.Process, len(o.procs))
	for id, p := range o.procs {
		out[id] = p
	}
	return out
}
