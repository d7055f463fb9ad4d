package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
)

// WriteSummary prints one line per job, in job order, with its final
// status, attempt, return code, duration and log file.
func WriteSummary(w io.Writer, jobs []job.Job, results map[string]job.Result) error {
	if _, err := fmt.Fprintln(w, "=== SUMMARY ==="); err != nil {
		return err
	}
	for _, j := range jobs {
		r, ok := results[j.ID]
		if !ok {
			r = job.Queued(j.ID)
		}
		if _, err := fmt.Fprintln(w, SummaryLine(r)); err != nil {
			return err
		}
	}
	return nil
}

func SummaryLine(r job.Result) string {
	rc := "-"
	if r.ReturnCode != nil {
		rc = fmt.Sprintf("%d", *r.ReturnCode)
	}
	dur := "-"
	if r.StartedAt != nil && r.FinishedAt != nil {
		dur = fmt.Sprintf("%.1fs", r.Duration().Round(100*time.Millisecond).Seconds())
	}
	line := fmt.Sprintf("- %s: %s (attempt %d) rc=%s dur=%s", r.JobID, r.Status, r.Attempt, rc, dur)
	if r.LogFile != "" {
		line += " log=" + r.LogFile
	}
	if r.Error != "" {
		line += fmt.Sprintf(" error=%q", r.Error)
	}
	return line
}

// Counts tallies results by status.
func Counts(results map[string]job.Result) map[job.Status]int {
	out := make(map[job.Status]int)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
