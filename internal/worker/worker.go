package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
)

const DefaultPoolSize = 2

// ResultWriter persists a job's latest result.
type ResultWriter interface {
	Put(r job.Result) error
}

// Worker runs jobs from the shared queue until it is empty or the run is
// stopped.
type Worker struct {
	id      int
	queue   <-chan job.Job
	retrier *Retrier
	state   ResultWriter
	report  func(jobID string, o Outcome)
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			slog.Debug("worker stopping", "worker", w.id)
			return
		}
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", "worker", w.id)
			return
		case j, ok := <-w.queue:
			if !ok {
				slog.Debug("worker finished, queue empty", "worker", w.id)
				return
			}
			if ctx.Err() != nil {
				return
			}
			w.runJob(ctx, j)
		}
	}
}

func (w *Worker) runJob(ctx context.Context, j job.Job) {
	var out Outcome
	defer func() {
		panicked := false
		if p := recover(); p != nil {
			panicked = true
			now := time.Now()
			out.Result = job.Result{
				JobID:      j.ID,
				Status:     job.StatusFailed,
				FinishedAt: &now,
				Attempt:    out.Attempts,
				Error:      fmt.Sprintf("worker panic: %v", p),
			}
			slog.Error("job processing panicked", "worker", w.id, "job", j.ID, "panic", p, "stack", string(debug.Stack()))
			if w.state != nil {
				if err := w.state.Put(out.Result); err != nil {
					slog.Error("persist job state", "job", j.ID, "error", err)
				}
			}
		}
		if out.Attempts > 0 || panicked {
			w.report(j.ID, out)
		}
	}()

	slog.Info("job picked up", "worker", w.id, "job", j.ID, "max_attempts", j.MaxAttempts())
	out = w.retrier.Do(ctx, j)
}

// Pool is a fixed number of workers draining one FIFO queue.
type Pool struct {
	Size    int
	Retrier *Retrier
	State   ResultWriter
}

// Run processes jobs and returns once every worker has exited. Jobs that
// were never started because of a stop are absent from the result.
func (p *Pool) Run(ctx context.Context, jobs []job.Job) map[string]Outcome {
	size := p.Size
	if size < 1 {
		size = 1
	}

	queue := make(chan job.Job, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	var mu sync.Mutex
	outcomes := make(map[string]Outcome, len(jobs))
	report := func(jobID string, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[jobID] = o
	}

	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		w := &Worker{id: i + 1, queue: queue, retrier: p.Retrier, state: p.State, report: report}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	return outcomes
}
