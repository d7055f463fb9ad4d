//go:build unix

package orchestrator

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
	"github.com/CharanSaiVaddi/scrapectl/internal/storage"
)

func newTestOrchestrator(t *testing.T, runsDir string, concurrency int, jobs ...job.Job) *Orchestrator {
	t.Helper()
	o, err := New(jobs, Options{
		Concurrency: concurrency,
		RunsDir:     runsDir,
		BaseDir:     t.TempDir(),
		KillGrace:   300 * time.Millisecond,
	})
	require.NoError(t, err)
	return o
}

func j(id string, timeout, retries int, cmd ...string) job.Job {
	return job.Job{ID: id, Command: cmd, TimeoutSeconds: timeout, MaxRetries: retries}
}

func TestRun_Success(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 2, j("a", 10, 0, "true"))

	results, err := o.Run(context.Background())
	require.NoError(t, err)

	r := results["a"]
	assert.Equal(t, job.StatusSuccess, r.Status)
	assert.Equal(t, 1, r.Attempt)
	require.NotNil(t, r.ReturnCode)
	assert.Equal(t, 0, *r.ReturnCode)
}

func TestRun_FailedExhaustsRetries(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 2, j("b", 10, 2, "false"))

	results, err := o.Run(context.Background())
	require.NoError(t, err)

	r := results["b"]
	assert.Equal(t, job.StatusFailed, r.Status)
	assert.Equal(t, 3, r.Attempt)
	require.NotNil(t, r.ReturnCode)
	assert.Equal(t, 1, *r.ReturnCode)

	logs, err := filepath.Glob(filepath.Join(filepath.Dir(o.Store().Path()), LogDirName, "b-*-attempt*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestRun_TimeoutEveryAttempt(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 2, j("c", 1, 1, "sleep", "5"))

	start := time.Now()
	results, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, job.StatusTimeout, results["c"].Status)
	assert.Equal(t, 2, results["c"].Attempt)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRun_PoolSizeOneSerializes(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 1,
		j("d", 10, 0, "sleep", "1"),
		j("e", 10, 0, "sleep", "1"),
	)

	start := time.Now()
	results, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
	assert.Equal(t, job.StatusSuccess, results["d"].Status)
	assert.Equal(t, job.StatusSuccess, results["e"].Status)
	assert.False(t, results["e"].StartedAt.Before(*results["d"].FinishedAt), "attempts overlapped with a single worker")
}

func TestRun_StopMarksInFlightKilled(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 1,
		j("f", 60, 3, "sleep", "30"),
		j("g", 60, 0, "true"),
	)

	go func() {
		for len(o.live()) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		o.StopAll()
	}()

	start := time.Now()
	results, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, job.StatusKilled, results["f"].Status)
	assert.Equal(t, 1, results["f"].Attempt)
	assert.Equal(t, job.StatusQueued, results["g"].Status)
	assert.Empty(t, o.live())
}

func TestRun_ParentContextCancelled(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 2, j("f", 60, 0, "sleep", "30"))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(o.live()) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	results, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusKilled, results["f"].Status)
}

func TestRun_OnlySelectedJobsAreTouched(t *testing.T) {
	runs := t.TempDir()
	all := []job.Job{j("a", 10, 0, "true"), j("b", 10, 0, "false"), j("c", 10, 0, "true")}

	// First load records every job as queued.
	require.NoError(t, newTestOrchestrator(t, runs, 2, all...).Store().Seed(job.IDs(all)))

	selected := Select(all, Filter{Only: []string{"a", "b"}}, nil)
	o := newTestOrchestrator(t, runs, 2, selected...)
	results, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.NotContains(t, results, "c")

	snap := o.Store().Load()
	assert.Equal(t, job.StatusQueued, snap["c"].Status)
	assert.Equal(t, job.StatusSuccess, snap["a"].Status)
	assert.Equal(t, job.StatusFailed, snap["b"].Status)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, selected, results))
	assert.Contains(t, buf.String(), "- a: success")
	assert.Contains(t, buf.String(), "- b: failed")
	assert.NotContains(t, buf.String(), "- c:")
}

func TestRun_OnlyFailedResume(t *testing.T) {
	runs := t.TempDir()
	all := []job.Job{
		j("ok", 10, 0, "true"),
		j("bad", 10, 0, "false"),
		j("slow", 1, 0, "sleep", "3"),
	}

	first := newTestOrchestrator(t, runs, 3, all...)
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	selected := Select(all, Filter{OnlyFailed: true}, first.Store().Load())
	assert.ElementsMatch(t, []string{"bad", "slow"}, job.IDs(selected))
}

func TestRun_ResumeKeepsPriorHistory(t *testing.T) {
	runs := t.TempDir()
	first := newTestOrchestrator(t, runs, 1, j("a", 10, 0, "false"))
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	second := newTestOrchestrator(t, runs, 1, j("a", 10, 0, "false"))
	require.NoError(t, second.Store().Seed([]string{"a"}))
	assert.Equal(t, job.StatusFailed, second.Store().Load()["a"].Status)
}

func TestRun_RecordsAttemptHistory(t *testing.T) {
	runs := t.TempDir()
	hist := storage.NewSQLiteStorage()
	require.NoError(t, hist.Init(filepath.Join(runs, "history.db")))
	t.Cleanup(func() { hist.Close() })

	o, err := New([]job.Job{j("b", 10, 1, "false")}, Options{RunsDir: runs, BaseDir: t.TempDir(), History: hist})
	require.NoError(t, err)
	_, err = o.Run(context.Background())
	require.NoError(t, err)

	rows, err := hist.ListByRun(o.RunID())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Attempt)
	assert.Equal(t, 2, rows[1].Attempt)
	assert.Equal(t, job.StatusFailed, rows[1].Status)
}

func TestStopAll_IdempotentWhenIdle(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 1, j("a", 10, 0, "true"))

	o.StopAll()
	o.StopAll()
	assert.True(t, o.Stopped())

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []job.Status{job.StatusQueued, job.StatusKilled}, results["a"].Status)
}

func TestNew_RejectsInvalidJobs(t *testing.T) {
	_, err := New([]job.Job{j("a", 10, 0, "true"), j("a", 10, 0, "true")}, Options{RunsDir: t.TempDir()})
	require.ErrorIs(t, err, job.ErrInvalidJob)
}

func TestNew_ClampsConcurrency(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), 0, j("a", 10, 0, "true"))
	assert.Equal(t, 1, o.opts.Concurrency)
}

func TestWriteSummary_Fields(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2500 * time.Millisecond)
	r := job.Result{JobID: "kia", Status: job.StatusTimeout, Attempt: 2, StartedAt: &start, FinishedAt: &end, LogFile: "runs/logs/kia.log", Error: "timeout after 1s"}
	r.SetReturnCode(-9)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, []job.Job{{ID: "kia"}, {ID: "never"}}, map[string]job.Result{"kia": r}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `- kia: timeout (attempt 2) rc=-9 dur=2.5s log=runs/logs/kia.log error="timeout after 1s"`, lines[1])
	assert.Equal(t, "- never: queued (attempt 0) rc=- dur=-", lines[2])
}
