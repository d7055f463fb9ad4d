package job

import "time"

// Result is the latest known outcome for a job. A retry overwrites the
// previous attempt's Result; earlier attempts live on in their log files
// and in the attempt history.
type Result struct {
	JobID      string     `json:"job_id"`
	Status     Status     `json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Attempt    int        `json:"attempt"`
	ReturnCode *int       `json:"return_code"`
	Error      string     `json:"error,omitempty"`
	LogFile    string     `json:"log_file,omitempty"`
}

func Queued(jobID string) Result {
	return Result{JobID: jobID, Status: StatusQueued}
}

// Duration is zero until both timestamps are set.
func (r Result) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

func (r *Result) SetReturnCode(code int) {
	r.ReturnCode = &code
}
