// Package history records reconciliation runs and the outcome of each
// operation they applied.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/executor"
)

// ErrRunNotFound is returned when no run matches the lookup.
var ErrRunNotFound = errors.New("run not found")

// Entry is the recorded outcome of one operation.
type Entry struct {
	Key       string        `json:"key"`
	Kind      string        `json:"kind"`
	Operation string        `json:"operation"`
	Status    string        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	RemoteID  string        `json:"remote_id,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Run is one reconciliation pass over a course.
type Run struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Conflicts  int       `json:"conflicts"`
	Entries    []Entry   `json:"entries"`
}

// FromReport converts an executor report into a run record.
func FromReport(r *executor.Report, dryRun bool, conflicts int) Run {
	s := r.Summary()
	run := Run{
		ID:         r.RunID,
		CourseID:   r.CourseID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DryRun:     dryRun,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		Conflicts:  conflicts,
		Entries:    make([]Entry, len(r.Entries)),
	}
	for i, e := range r.Entries {
		run.Entries[i] = Entry{
			Key:       e.Key,
			Kind:      e.Kind.String(),
			Operation: e.Operation,
			Status:    string(e.Status),
			Reason:    e.Reason,
			RemoteID:  e.RemoteID,
			Duration:  e.Duration,
		}
	}
	return run
}

// RunStore persists run records.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	LatestRun(ctx context.Context, courseID string) (*Run, error)
}

// MemoryStore is an in-memory RunStore.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []Run
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == run.ID {
			return fmt.Errorf("run %s already recorded", run.ID)
		}
	}
	run.Entries = slices.Clone(run.Entries)
	s.runs = append(s.runs, run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.ID == id {
			r.Entries = slices.Clone(r.Entries)
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

func (s *MemoryStore) LatestRun(_ context.Context, courseID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Run
	for i := range s.runs {
		r := &s.runs[i]
		if r.CourseID == courseID && (latest == nil || !r.StartedAt.Before(latest.StartedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no runs for course %s", ErrRunNotFound, courseID)
	}
	out := *latest
	out.Entries = slices.Clone(out.Entries)
	return &out, nil
}
