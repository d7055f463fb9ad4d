// Package runner executes a single attempt of a job as a child process.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
)

const (
	DefaultKillGrace = time.Second

	logTimeLayout = "20060102-150405"
	drainTimeout  = 2 * time.Second
)

// StateWriter persists the latest result of a job.
type StateWriter interface {
	Put(r job.Result) error
}

// AttemptRecorder keeps the history of finished attempts.
type AttemptRecorder interface {
	RecordAttempt(runID string, r job.Result) error
}

// Tracker is told about a child process for as long as its attempt runs.
type Tracker interface {
	Track(jobID string, p *os.Process)
	Untrack(jobID string)
}

// Runner launches attempts. The zero value runs commands in the current
// directory, writes logs there and persists nothing.
type Runner struct {
	BaseDir   string
	LogDir    string
	KillGrace time.Duration
	RunID     string

	State   StateWriter
	History AttemptRecorder
	Tracker Tracker
}

// Run executes one attempt of j and returns its terminal result. It never
// panics and never returns a running result.
func (r *Runner) Run(ctx context.Context, j job.Job, attempt int) (res job.Result) {
	started := time.Now()
	res = job.Result{
		JobID:     j.ID,
		Status:    job.StatusRunning,
		StartedAt: &started,
		Attempt:   attempt,
		LogFile:   r.LogPath(j.ID, started, attempt),
	}
	r.persist(res)

	defer func() {
		if p := recover(); p != nil {
			res.Status = job.StatusFailed
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		finished := time.Now()
		res.FinishedAt = &finished
		r.persist(res)
		r.record(res)

		slog.Info("attempt finished",
			"job", j.ID,
			"attempt", attempt,
			"status", res.Status,
			"duration", res.Duration().Round(time.Millisecond),
		)
	}()

	if ctx.Err() != nil {
		res.Status = job.StatusKilled
		res.Error = "cancelled before start"
		return res
	}

	slog.Info("attempt started", "job", j.ID, "attempt", attempt, "log", res.LogFile)
	r.execute(ctx, j, &res)
	return res
}

// LogPath names the log file of one attempt.
func (r *Runner) LogPath(jobID string, started time.Time, attempt int) string {
	name := fmt.Sprintf("%s-%s-attempt%d.log", safeName(jobID), started.Format(logTimeLayout), attempt)
	return filepath.Join(r.LogDir, name)
}

func (r *Runner) execute(ctx context.Context, j job.Job, res *job.Result) {
	if r.LogDir != "" {
		if err := os.MkdirAll(r.LogDir, 0755); err != nil {
			res.Status = job.StatusFailed
			res.Error = fmt.Sprintf("create log directory: %v", err)
			return
		}
	}
	lf, err := os.OpenFile(res.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		res.Status = job.StatusFailed
		res.Error = fmt.Sprintf("open log file: %v", err)
		return
	}
	defer lf.Close()
	fmt.Fprintf(lf, "[START] job=%s attempt=%d\ncmd=%s\n\n", j.ID, res.Attempt, j.CommandLine())

	// stdout and stderr share one pipe so the log keeps their interleaving.
	pr, pw, err := os.Pipe()
	if err != nil {
		res.Status = job.StatusFailed
		res.Error = fmt.Sprintf("create output pipe: %v", err)
		return
	}
	defer pr.Close()

	cmd := exec.Command(j.Command[0], j.Command[1:]...)
	cmd.Dir = r.BaseDir
	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		pw.Close()
		res.Status = job.StatusFailed
		res.Error = err.Error()
		fmt.Fprintf(lf, "[ERROR] %v\n", err)
		return
	}
	pw.Close()

	if r.Tracker != nil {
		r.Tracker.Track(j.ID, cmd.Process)
		defer r.Tracker.Untrack(j.ID)
	}

	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		streamLines(pr, lf)
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	timer := time.NewTimer(j.Timeout())
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-exited:
	case <-timer.C:
		res.Status = job.StatusTimeout
		res.Error = fmt.Sprintf("timeout after %ds", j.TimeoutSeconds)
		slog.Warn("attempt timed out, killing", "job", j.ID, "attempt", res.Attempt, "pid", cmd.Process.Pid)
		Kill(cmd.Process)
		waitErr = <-exited
	case <-ctx.Done():
		res.Status = job.StatusKilled
		res.Error = "cancelled"
		waitErr = r.stop(cmd.Process, exited)
	}

	drain(pr, streamed)

	code, ok := exitCode(cmd.ProcessState)
	if ok {
		res.SetReturnCode(code)
	}
	if res.Status != job.StatusRunning {
		return
	}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil && code == 0:
		res.Status = job.StatusSuccess
	case errors.As(waitErr, &exitErr), waitErr == nil:
		res.Status = job.StatusFailed
		res.Error = fmt.Sprintf("exit status %d", code)
	default:
		res.Status = job.StatusFailed
		res.Error = waitErr.Error()
	}
}

// stop asks the child to terminate and kills it once the grace period is up.
func (r *Runner) stop(p *os.Process, exited <-chan error) error {
	grace := r.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	Terminate(p)
	select {
	case err := <-exited:
		return err
	case <-time.After(grace):
		Kill(p)
		return <-exited
	}
}

func (r *Runner) persist(res job.Result) {
	if r.State == nil {
		return
	}
	if err := r.State.Put(res); err != nil {
		slog.Error("persist job state", "job", res.JobID, "attempt", res.Attempt, "error", err)
	}
}

func (r *Runner) record(res job.Result) {
	if r.History == nil {
		return
	}
	if err := r.History.RecordAttempt(r.RunID, res); err != nil {
		slog.Warn("record attempt history", "job", res.JobID, "attempt", res.Attempt, "error", err)
	}
}

// streamLines copies child output line by line so that a tail of the log
// follows the child closely.
func streamLines(src io.Reader, dst io.Writer) {
	br := bufio.NewReader(src)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := dst.Write(line); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// drain waits for the output stream to finish. A grandchild that outlived
// the child can hold the pipe open, so the read side is closed after a while.
func drain(pr *os.File, streamed <-chan struct{}) {
	select {
	case <-streamed:
	case <-time.After(drainTimeout):
		pr.Close()
		<-streamed
	}
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, id)
}
