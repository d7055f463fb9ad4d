// Package state persists the latest result of every job as a single JSON
// snapshot that is replaced atomically on each write.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/CharanSaiVaddi/scrapectl/internal/job"
)

// Snapshot maps job id to its latest result.
type Snapshot map[string]job.Result

// Store is the run-state snapshot file. All writes from one process go
// through the same Store so that read-modify-write cycles never interleave.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the last saved snapshot. A missing or unreadable file is
// treated as empty history.
func (s *Store) Load() Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("state snapshot unreadable, starting with empty history", "path", s.path, "error", err)
		}
		return Snapshot{}
	}
	snap := Snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("state snapshot corrupt, starting with empty history", "path", s.path, "error", err)
		return Snapshot{}
	}
	return snap
}

// Save replaces the whole snapshot. Readers see either the previous or the
// new file, never a partial write.
func (s *Store) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Update loads the snapshot, applies fn and saves the result while holding
// the store lock.
func (s *Store) Update(fn func(Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.Load()
	fn(snap)
	return s.Save(snap)
}

// Put records r as the latest result for its job.
func (s *Store) Put(r job.Result) error {
	return s.Update(func(snap Snapshot) {
		snap[r.JobID] = r
	})
}

// Seed adds a queued entry for every id that has no history yet. Existing
// entries are left untouched.
func (s *Store) Seed(ids []string) error {
	return s.Update(func(snap Snapshot) {
		for _, id := range ids {
			if _, ok := snap[id]; !ok {
				snap[id] = job.Queued(id)
			}
		}
	})
}

// Snapshot returns a consistent copy of the stored state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Load()
}
