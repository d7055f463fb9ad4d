package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
)

// Attempt is one recorded execution of a job.
type Attempt struct {
	ID         string
	RunID      string
	JobID      string
	Attempt    int
	Status     job.Status
	StartedAt  time.Time
	FinishedAt time.Time
	ReturnCode *int
	Error      string
	LogFile    string
}

func (a Attempt) Duration() time.Duration {
	if a.StartedAt.IsZero() || a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Storage keeps the history of every attempt across runs. The run-state
// snapshot only holds the latest attempt per job.
type Storage interface {
	Init(path string) error
	Close() error
	RecordAttempt(runID string, r job.Result) error
	ListByJob(jobID string) ([]*Attempt, error)
	ListByRun(runID string) ([]*Attempt, error)
}

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage() *SQLiteStorage { return &SQLiteStorage{} }

func (s *SQLiteStorage) Init(path string) error {
	if path == "" {
		path = "history.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return err
	}
	s.db = db
	return s.migrate()
}

func (s *SQLiteStorage) migrate() error {
	q := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		run_id TEXT,
		job_id TEXT,
		attempt INTEGER,
		status TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		return_code INTEGER,
		error TEXT,
		log_file TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_job ON attempts(job_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	`
	_, err := s.db.Exec(q)
	return err
}

func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordAttempt stores a finished attempt. Results that are not terminal
// are rejected.
func (s *SQLiteStorage) RecordAttempt(runID string, r job.Result) error {
	if !r.Status.Terminal() {
		return errors.New("attempt is not finished")
	}
	var startedAt, finishedAt sql.NullTime
	if r.StartedAt != nil {
		startedAt = sql.NullTime{Time: r.StartedAt.UTC(), Valid: true}
	}
	if r.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: r.FinishedAt.UTC(), Valid: true}
	}
	var rc sql.NullInt64
	if r.ReturnCode != nil {
		rc = sql.NullInt64{Int64: int64(*r.ReturnCode), Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO attempts(id,run_id,job_id,attempt,status,started_at,finished_at,return_code,error,log_file) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		uuid.New().String(), runID, r.JobID, r.Attempt, string(r.Status), startedAt, finishedAt, rc, r.Error, r.LogFile)
	return err
}

func (s *SQLiteStorage) ListByJob(jobID string) ([]*Attempt, error) {
	return s.list(`SELECT id,run_id,job_id,attempt,status,started_at,finished_at,return_code,error,log_file FROM attempts WHERE job_id = ? ORDER BY started_at, attempt`, jobID)
}

func (s *SQLiteStorage) ListByRun(runID string) ([]*Attempt, error) {
	return s.list(`SELECT id,run_id,job_id,attempt,status,started_at,finished_at,return_code,error,log_file FROM attempts WHERE run_id = ? ORDER BY job_id, attempt`, runID)
}

func (s *SQLiteStorage) list(query string, arg string) ([]*Attempt, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Attempt
	for rows.Next() {
		a := &Attempt{}
		var status string
		var startedAt, finishedAt sql.NullTime
		var rc sql.NullInt64
		if err := rows.Scan(&a.ID, &a.RunID, &a.JobID, &a.Attempt, &status, &startedAt, &finishedAt, &rc, &a.Error, &a.LogFile); err != nil {
			return nil, err
		}
		a.Status = job.Status(status)
		if startedAt.Valid {
			a.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			a.FinishedAt = finishedAt.Time
		}
		if rc.Valid {
			code := int(rc.Int64)
			a.ReturnCode = &code
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
