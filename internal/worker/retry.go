package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
)

// AttemptRunner executes a single attempt of a job.
type AttemptRunner interface {
	Run(ctx context.Context, j job.Job, attempt int) job.Result
}

// Backoff delays retries by Base * 2^(n-1) after the n-th failed attempt,
// capped at Max. A zero Base retries immediately.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(failed int) time.Duration {
	if b.Base <= 0 || failed < 1 {
		return 0
	}
	wait := b.Base
	for i := 1; i < failed; i++ {
		wait *= 2
		if b.Max > 0 && wait >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && wait > b.Max {
		return b.Max
	}
	return wait
}

// Outcome is what the retry loop ended with for one job.
type Outcome struct {
	Result   job.Result
	Attempts int
}

// Retrier runs a job until it succeeds or its attempt budget is spent.
type Retrier struct {
	Runner  AttemptRunner
	Backoff Backoff
}

// Do runs attempts sequentially. The final result is the last attempt's
// own result; exhausting the budget does not rewrite it. No attempt is
// started once ctx is done.
func (r *Retrier) Do(ctx context.Context, j job.Job) Outcome {
	out := Outcome{Result: job.Queued(j.ID)}
	for attempt := 1; attempt <= j.MaxAttempts(); attempt++ {
		if attempt > 1 {
			if !r.wait(ctx, j, attempt-1) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		out.Result = r.Runner.Run(ctx, j, attempt)
		out.Attempts = attempt
		if out.Result.Status == job.StatusSuccess {
			break
		}
		if attempt < j.MaxAttempts() {
			slog.Info("attempt did not succeed, retrying",
				"job", j.ID,
				"attempt", attempt,
				"status", out.Result.Status,
				"remaining", j.MaxAttempts()-attempt,
			)
		}
	}
	return out
}

func (r *Retrier) wait(ctx context.Context, j job.Job, failed int) bool {
	d := r.Backoff.Delay(failed)
	if d == 0 {
		return ctx.Err() == nil
	}
	slog.Info("backing off before retry", "job", j.ID, "delay", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
