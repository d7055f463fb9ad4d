package orchestrator

import (
	"strings"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
	"github.com/CharanSaiVaddi/scrapectl/internal/state"
)

// Filter narrows the loaded job list before a run.
type Filter struct {
	Only       []string
	Skip       []string
	OnlyFailed bool
}

// ParseIDs splits a comma separated id list, dropping blanks.
func ParseIDs(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Select applies f to jobs, keeping file order. snap is only consulted for
// OnlyFailed, which keeps jobs whose last status was failed or timeout.
func Select(jobs []job.Job, f Filter, snap state.Snapshot) []job.Job {
	only := toSet(f.Only)
	skip := toSet(f.Skip)

	out := make([]job.Job, 0, len(jobs))
	for _, j := range jobs {
		if len(only) > 0 {
			if _, ok := only[j.ID]; !ok {
				continue
			}
		}
		if _, ok := skip[j.ID]; ok {
			continue
		}
		if f.OnlyFailed {
			r, ok := snap[j.ID]
			if !ok || !r.Status.NeedsAttention() {
				continue
			}
		}
		out = append(out, j)
	}
	return out
}

// UnknownIDs returns the ids in f that match no job.
func UnknownIDs(jobs []job.Job, f Filter) []string {
	known := toSet(job.IDs(jobs))
	var out []string
	for _, id := range append(append([]string(nil), f.Only...), f.Skip...) {
		if _, ok := known[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
