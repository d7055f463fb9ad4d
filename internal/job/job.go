package job

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state recorded for a job in the run-state snapshot.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusKilled  Status = "killed"
)

const (
	DefaultTimeoutSeconds = 1800
	DefaultMaxRetries     = 0
)

var ErrInvalidJob = errors.New("invalid job")

// Terminal reports whether s is the final outcome of an attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusKilled:
		return true
	}
	return false
}

// NeedsAttention reports whether a job in state s is picked up by --only-failed.
func (s Status) NeedsAttention() bool {
	return s == StatusFailed || s == StatusTimeout
}

// Job is one scraper invocation. It is immutable once loaded.
type Job struct {
	ID             string   `json:"id"`
	Command        []string `json:"cmd"`
	TimeoutSeconds int      `json:"timeout_sec"`
	MaxRetries     int      `json:"retries"`
}

func (j Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// MaxAttempts is the first attempt plus every retry.
func (j Job) MaxAttempts() int {
	return j.MaxRetries + 1
}

func (j Job) CommandLine() string {
	return strings.Join(j.Command, " ")
}

func (j Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	if len(j.Command) == 0 || strings.TrimSpace(j.Command[0]) == "" {
		return fmt.Errorf("%w: job %q has an empty command", ErrInvalidJob, j.ID)
	}
	if j.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: job %q timeout must be positive, got %d", ErrInvalidJob, j.ID, j.TimeoutSeconds)
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("%w: job %q retries must not be negative, got %d", ErrInvalidJob, j.ID, j.MaxRetries)
	}
	return nil
}

// ValidateAll validates every job and rejects duplicate ids.
func ValidateAll(jobs []Job) error {
	seen := make(map[string]struct{}, len(jobs))
	for i, j := range jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job #%d: %w", i+1, err)
		}
		if _, dup := seen[j.ID]; dup {
			return fmt.Errorf("job #%d: %w: duplicate id %q", i+1, ErrInvalidJob, j.ID)
		}
		seen[j.ID] = struct{}{}
	}
	return nil
}

// IDs returns job ids in their original order.
func IDs(jobs []Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}
