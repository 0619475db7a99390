package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/p-n-ai/pai-classroom/internal/executor"
	"github.com/p-n-ai/pai-classroom/internal/history"
	"github.com/p-n-ai/pai-classroom/internal/reconcile"
)

func sampleRun(courseID string, started time.Time) history.Run {
	return history.Run{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Succeeded:  1,
		Failed:     1,
		Entries: []history.Entry{
			{Key: "topic:Week 1", Kind: "CreateTopic", Operation: `CreateTopic("Week 1")`, Status: "succeeded", RemoteID: "t1", Duration: 120 * time.Millisecond},
			{Key: "coursework:Week 1/quiz", Kind: "CreateCoursework", Operation: `CreateCoursework("Week 1", "Quiz")`, Status: "failed", Reason: "quota exceeded"},
		},
	}
}

// testRunStore checks the behaviour every RunStore shares.
func testRunStore(t *testing.T, store history.RunStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	older := sampleRun("course-1", base)
	newer := sampleRun("course-1", base.Add(time.Hour))
	other := sampleRun("course-2", base.Add(2*time.Hour))
	for _, r := range []history.Run{older, newer, other} {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	got, err := store.GetRun(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if diff := cmp.Diff(older, *got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("GetRun() mismatch (-want +got):\n%s", diff)
	}

	latest, err := store.LatestRun(ctx, "course-1")
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest.ID != newer.ID {
		t.Errorf("LatestRun() = %s, want %s", latest.ID, newer.ID)
	}

	if _, err := store.GetRun(ctx, uuid.NewString()); !errors.Is(err, history.ErrRunNotFound) {
		t.Errorf("GetRun(unknown) error = %v, want ErrRunNotFound", err)
	}
	if _, err := store.LatestRun(ctx, "course-3"); !errors.Is(err, history.ErrRunNotFound) {
		t.Errorf("LatestRun(unknown) error = %v, want ErrRunNotFound", err)
	}
	if err := store.SaveRun(ctx, history.Run{CourseID: "course-1"}); err == nil {
		t.Error("SaveRun() without id should fail")
	}
}

func TestMemoryStore(t *testing.T) {
	testRunStore(t, history.NewMemoryStore())
}

func TestMemoryStore_RejectsDuplicateRun(t *testing.T) {
	store := history.NewMemoryStore()
	run := sampleRun("course-1", time.Now())
	if err := store.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := store.SaveRun(context.Background(), run); err == nil {
		t.Error("second SaveRun() should fail")
	}
}

func TestFromReport(t *testing.T) {
	started := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	report := &executor.Report{
		RunID:      "run-1",
		CourseID:   "course-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Entries: []executor.Entry{
			{Key: "topic:A", Kind: reconcile.CreateTopic, Operation: `CreateTopic("A")`, Status: executor.StatusSucceeded, RemoteID: "t1"},
			{Key: "coursework:A/x", Kind: reconcile.CreateCoursework, Status: executor.StatusSkipped, Reason: executor.ReasonCancelled},
		},
	}

	got := history.FromReport(report, false, 2)

	want := history.Run{
		ID:         "run-1",
		CourseID:   "course-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Succeeded:  1,
		Skipped:    1,
		Conflicts:  2,
		Entries: []history.Entry{
			{Key: "topic:A", Kind: "CreateTopic", Operation: `CreateTopic("A")`, Status: "succeeded", RemoteID: "t1"},
			{Key: "coursework:A/x", Kind: "CreateCoursework", Status: "skipped", Reason: "run cancelled"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromReport() mismatch (-want +got):\n%s", diff)
	}
}
