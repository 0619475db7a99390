// Package executor applies planned reconciliation operations to a remote
// course with bounded concurrency.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/reconcile"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

// DefaultWorkers is the concurrency used when Config.Workers is not positive.
const DefaultWorkers = 4

// Uploader turns an upload-pending material into a Drive material.
type Uploader interface {
	Upload(ctx context.Context, ref course.MaterialRef) (remote.Material, error)
}

// Config holds the executor dependencies.
type Config struct {
	Classroom remote.Classroom
	Uploader  Uploader
	Workers   int
	Now       func() time.Time
}

// Executor runs operation lists. It is safe for sequential reuse.
type Executor struct {
	classroom remote.Classroom
	uploader  Uploader
	workers   int
	now       func() time.Time
}

// New creates an executor.
func New(cfg Config) *Executor {
	e := &Executor{
		classroom: cfg.Classroom,
		uploader:  cfg.Uploader,
		workers:   cfg.Workers,
		now:       cfg.Now,
	}
	if e.workers <= 0 {
		e.workers = DefaultWorkers
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

type run struct {
	*Executor
	courseID string
	ops      []reconcile.Operation
	byKey    map[string]int
	slots    []Entry

	// inline maps a CreateCoursework index to the attach operations whose
	// materials travel in its create body; folded is the reverse.
	inline map[int][]int
	folded map[int]int
}

// Execute applies ops against courseID. An operation starts only after every
// dependency succeeded; a failure skips its transitive dependents while
// independent operations continue. Once ctx is done no new operation starts,
// calls already in flight complete, and the rest are reported skipped.
func (e *Executor) Execute(ctx context.Context, courseID string, ops []reconcile.Operation) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		CourseID:  courseID,
		StartedAt: e.now(),
	}
	r := &run{
		Executor: e,
		courseID: courseID,
		ops:      ops,
		byKey:    make(map[string]int, len(ops)),
		slots:    make([]Entry, len(ops)),
	}
	for i, op := range ops {
		r.slots[i] = Entry{Key: op.Key, Kind: op.Kind, Operation: op.String()}
	}

	if err := r.check(); err != nil {
		slog.Error("operation list rejected", "course", courseID, "error", err)
		for i := range r.slots {
			r.slots[i].Status = StatusFailed
			r.slots[i].Err = &OperationError{Key: ops[i].Key, Kind: ops[i].Kind, Err: err}
			r.slots[i].Reason = err.Error()
		}
	} else {
		r.fold()
		r.coordinate(ctx)
	}

	report.Entries = r.slots
	report.FinishedAt = e.now()
	slog.Info("run finished",
		"run_id", report.RunID,
		"course", courseID,
		"summary", report.Summary().String(),
	)
	return report
}

func (r *run) check() error {
	if r.classroom == nil {
		return fmt.Errorf("%w: no classroom client", ErrInvalidOperations)
	}
	for i, op := range r.ops {
		if _, dup := r.byKey[op.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidOperations, op.Key)
		}
		r.byKey[op.Key] = i
	}
	for i, op := range r.ops {
		for _, dep := range op.DependsOn {
			d, ok := r.byKey[dep]
			if !ok {
				return fmt.Errorf("%w: %q depends on unknown key %q", ErrInvalidOperations, op.Key, dep)
			}
			if d >= i {
				return fmt.Errorf("%w: %q is listed before its dependency %q", ErrInvalidOperations, op.Key, dep)
			}
		}
	}
	return nil
}

// fold assigns every attach of a material that needs no upload to the
// CreateCoursework it depends on, so the material is sent with the new item
// instead of being patched onto it afterwards.
func (r *run) fold() {
	r.inline = make(map[int][]int)
	r.folded = make(map[int]int)
	for i, op := range r.ops {
		if op.Kind != reconcile.AttachMaterial || op.CourseworkID != "" || op.Material.NeedsUpload {
			continue
		}
		for _, dep := range op.DependsOn {
			if d := r.byKey[dep]; r.ops[d].Kind == reconcile.CreateCoursework {
				r.inline[d] = append(r.inline[d], i)
				r.folded[i] = d
				break
			}
		}
	}
}

// coordinate owns scheduling and skip propagation. Workers write only their
// own slot and report its index on done.
func (r *run) coordinate(ctx context.Context) {
	n := len(r.ops)
	waiting := make([]int, n)
	dependents := make([][]int, n)
	for i, op := range r.ops {
		for _, dep := range op.DependsOn {
			d := r.byKey[dep]
			dependents[d] = append(dependents[d], i)
			waiting[i]++
		}
	}

	var ready []int
	for i := range waiting {
		if waiting[i] == 0 {
			ready = append(ready, i)
		}
	}

	done := make(chan int, n)
	var g errgroup.Group
	g.SetLimit(r.workers)
	inFlight, resolved := 0, 0

	for resolved < n {
		for len(ready) > 0 && inFlight < r.workers && ctx.Err() == nil {
			i := ready[0]
			ready = ready[1:]
			inFlight++
			g.Go(func() error {
				r.apply(ctx, i)
				done <- i
				return nil
			})
		}
		if inFlight == 0 {
			break
		}

		i := <-done
		inFlight--
		resolved++
		if r.slots[i].Status == StatusFailed {
			resolved += r.skipDependents(i, dependents)
		}
		for _, m := range dependents[i] {
			waiting[m]--
			if waiting[m] == 0 && r.slots[m].Status == "" {
				ready = append(ready, m)
			}
		}
		slices.Sort(ready)
	}
	g.Wait()

	for i := range r.slots {
		if r.slots[i].Status == "" {
			r.slots[i].Status = StatusSkipped
			r.slots[i].Reason = ReasonCancelled
		}
	}
}

// skipDependents marks every not yet resolved transitive dependent of the
// failed operation as skipped and returns how many it marked.
func (r *run) skipDependents(failed int, dependents [][]int) int {
	reason := fmt.Sprintf("dependency %s failed", r.ops[failed].Key)
	marked := 0
	queue := slices.Clone(dependents[failed])
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if r.slots[m].Status != "" {
			continue
		}
		r.slots[m].Status = StatusSkipped
		r.slots[m].Reason = reason
		marked++
		slog.Warn("operation skipped", "op", r.slots[m].Operation, "reason", reason)
		queue = append(queue, dependents[m]...)
	}
	return marked
}

// apply runs one operation and fills its slot. The call itself runs detached
// from ctx so a cancelled run does not abort a mutation half way.
func (r *run) apply(ctx context.Context, i int) {
	op := r.ops[i]
	slot := &r.slots[i]
	slot.StartedAt = r.now()

	id, err := r.call(context.WithoutCancel(ctx), i)

	slot.Duration = r.now().Sub(slot.StartedAt)
	if err != nil {
		slot.Status = StatusFailed
		slot.Err = &OperationError{Key: op.Key, Kind: op.Kind, Err: err}
		slot.Reason = err.Error()
		slog.Warn("operation failed", "op", slot.Operation, "key", op.Key, "error", err)
		return
	}
	slot.Status = StatusSucceeded
	slot.RemoteID = id
	slog.Info("operation applied", "op", slot.Operation, "key", op.Key, "remote_id", id, "duration", slot.Duration)
}

func (r *run) call(ctx context.Context, i int) (string, error) {
	op := r.ops[i]
	switch op.Kind {
	case reconcile.CreateTopic:
		return r.classroom.CreateTopic(ctx, r.courseID, op.Topic)

	case reconcile.CreateCoursework:
		topicID := op.TopicID
		if topicID == "" {
			topicID = r.created(op, reconcile.CreateTopic)
		}
		p := op.Payload(topicID)
		p.Scheduled = r.future(p.Scheduled)
		for _, j := range r.inline[i] {
			m, err := r.material(ctx, r.ops[j].Material)
			if err != nil {
				return "", err
			}
			p.Materials = append(p.Materials, m)
		}
		return r.classroom.CreateCoursework(ctx, r.courseID, p)

	case reconcile.UpdateCoursework:
		p := op.Payload(op.TopicID)
		if p.Scheduled = r.future(p.Scheduled); p.Scheduled == nil {
			p.Fields = slices.DeleteFunc(slices.Clone(p.Fields), func(f string) bool {
				return f == remote.FieldScheduled
			})
		}
		if len(p.Fields) == 0 {
			return op.CourseworkID, nil
		}
		err := r.classroom.UpdateCoursework(ctx, r.courseID, op.CourseworkID, p)
		return op.CourseworkID, err

	case reconcile.AttachMaterial:
		if _, ok := r.folded[i]; ok {
			// Sent with the create body, which succeeded before this ran.
			m, err := r.material(ctx, op.Material)
			if err != nil {
				return "", err
			}
			return materialID(m), nil
		}
		courseworkID := op.CourseworkID
		if courseworkID == "" {
			courseworkID = r.created(op, reconcile.CreateCoursework)
		}
		if courseworkID == "" {
			return "", errors.New("coursework id is unknown")
		}
		m, err := r.material(ctx, op.Material)
		if err != nil {
			return "", err
		}
		if err := r.classroom.AttachMaterial(ctx, r.courseID, courseworkID, op.Item.Kind, m); err != nil {
			return "", err
		}
		return materialID(m), nil

	default:
		return "", fmt.Errorf("unsupported operation kind %v", op.Kind)
	}
}

// created returns the remote id recorded by the dependency of the given kind.
func (r *run) created(op reconcile.Operation, kind reconcile.Kind) string {
	for _, dep := range op.DependsOn {
		d := r.byKey[dep]
		if r.ops[d].Kind == kind {
			return r.slots[d].RemoteID
		}
	}
	return ""
}

func (r *run) material(ctx context.Context, ref *course.MaterialRef) (remote.Material, error) {
	if ref.NeedsUpload {
		if r.uploader == nil {
			return remote.Material{}, fmt.Errorf("no uploader for %s", ref.LocalPath)
		}
		m, err := r.uploader.Upload(ctx, *ref)
		if err != nil {
			return remote.Material{}, fmt.Errorf("upload %s: %w", ref.LocalPath, err)
		}
		return m, nil
	}

	m := remote.Material{Kind: ref.Kind, Title: ref.Title}
	switch ref.Kind {
	case course.MaterialLink, course.MaterialForm:
		m.URL = ref.RemoteID
	default:
		m.ID = ref.RemoteID
	}
	return m, nil
}

func materialID(m remote.Material) string {
	if m.ID != "" {
		return m.ID
	}
	return m.URL
}

// future drops publication times that have already passed, so the item is
// published right away.
func (r *run) future(t *time.Time) *time.Time {
	if t == nil || !t.After(r.now()) {
		return nil
	}
	return t
}
