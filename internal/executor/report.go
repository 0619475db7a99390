package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-classroom/internal/reconcile"
)

// Status is the terminal state of one operation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	// StatusPlanned marks operations of a dry run, which are never applied.
	StatusPlanned   Status = "planned"
)

// ReasonCancelled is the skip reason of operations never dispatched because
// the run was cancelled.
const ReasonCancelled = "run cancelled"

// ErrInvalidOperations is returned for every operation of a list whose keys
// or dependencies are inconsistent.
var ErrInvalidOperations = errors.New("invalid operation list")

// OperationError records why a single operation failed.
type OperationError struct {
	Key  string
	Kind reconcile.Kind
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Entry is the report slot of one operation.
type Entry struct {
	Key       string
	Kind      reconcile.Kind
	Operation string
	Status    Status
	Reason    string
	RemoteID  string
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Report lists the outcome of every operation in the order they were given.
type Report struct {
	RunID      string
	CourseID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []Entry
}

// Summary counts entries by status.
type Summary struct {
	Planned   int
	Succeeded int
	Failed    int
	Skipped   int
}

func (s Summary) String() string {
	if s.Planned > 0 {
		return fmt.Sprintf("%d planned", s.Planned)
	}
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped", s.Succeeded, s.Failed, s.Skipped)
}

// Summary returns the status counts of the run.
func (r *Report) Summary() Summary {
	var s Summary
	for _, e := range r.Entries {
		switch e.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusPlanned:
			s.Planned++
		}
	}
	return s
}

// Failed reports whether any operation failed or was skipped.
func (r *Report) Failed() bool {
	s := r.Summary()
	return s.Failed > 0 || s.Skipped > 0
}

// Entry returns the slot for key.
func (r *Report) Entry(key string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// DryRun reports ops as planned without applying them.
func DryRun(courseID string, ops []reconcile.Operation) *Report {
	now := time.Now()
	r := &Report{
		RunID:      uuid.NewString(),
		CourseID:   courseID,
		StartedAt:  now,
		FinishedAt: now,
		Entries:    make([]Entry, len(ops)),
	}
	for i, op := range ops {
		r.Entries[i] = Entry{Key: op.Key, Kind: op.Kind, Operation: op.String(), Status: StatusPlanned}
	}
	return r
}
