// Package engine runs one reconciliation pass: resolve the course, fetch its
// remote state, plan the changes, apply them and record the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/executor"
	"github.com/p-n-ai/pai-classroom/internal/history"
	"github.com/p-n-ai/pai-classroom/internal/reconcile"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

// ErrNoCourse is returned when neither the plan nor the run options identify
// a course.
var ErrNoCourse = errors.New("plan names no course")

// Config holds the engine dependencies. Courses is needed only for plans
// that identify their course by name; History is optional.
type Config struct {
	Classroom remote.Classroom
	Courses   remote.Courses
	Uploader  executor.Uploader
	History   history.RunStore
	Workers   int
	Now       func() time.Time
}

// RunOptions adjust a single run.
type RunOptions struct {
	// CourseID overrides the plan's course.
	CourseID string
	// DryRun plans without applying anything.
	DryRun bool
}

// Outcome is the result of a run.
type Outcome struct {
	CourseID      string
	CourseCreated bool
	Plan          *reconcile.Result
	Report        *executor.Report
}

// Engine wires the reconciliation stages together.
type Engine struct {
	cfg      Config
	executor *executor.Executor
}

// New creates an engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		executor: executor.New(executor.Config{
			Classroom: cfg.Classroom,
			Uploader:  cfg.Uploader,
			Workers:   cfg.Workers,
			Now:       cfg.Now,
		}),
	}
}

// Run reconciles the remote course with desired. Errors are returned only
// when the run cannot start; per-operation failures are in the report.
func (e *Engine) Run(ctx context.Context, desired *course.Plan, opts RunOptions) (*Outcome, error) {
	if desired == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	if e.cfg.Classroom == nil {
		return nil, fmt.Errorf("classroom client is not configured")
	}

	out := &Outcome{}
	courseID, exists, err := e.resolveCourse(ctx, desired, opts)
	if err != nil {
		return nil, err
	}

	var state *remote.State
	if exists {
		if state, err = remote.Fetch(ctx, e.cfg.Classroom, courseID); err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				// Classroom assigns course ids, so a missing id cannot be created.
				return nil, fmt.Errorf("course %s does not exist, drop the id to create the course by name: %w", courseID, err)
			}
			return nil, err
		}
	} else {
		if !opts.DryRun {
			if courseID, err = e.cfg.Courses.CreateCourse(ctx, desired.CourseName); err != nil {
				return nil, fmt.Errorf("create course %q: %w", desired.CourseName, err)
			}
			out.CourseCreated = true
			slog.Info("course created", "course", courseID, "name", desired.CourseName)
		}
		state = remote.EmptyState(courseID)
	}
	out.CourseID = courseID

	if out.Plan, err = reconcile.Plan(desired, state); err != nil {
		return nil, fmt.Errorf("plan course %s: %w", courseID, err)
	}
	for _, c := range out.Plan.Conflicts {
		slog.Warn("conflicting remote item", "course", courseID, "conflict", c.String())
	}

	if opts.DryRun {
		out.Report = executor.DryRun(courseID, out.Plan.Operations)
	} else {
		out.Report = e.executor.Execute(ctx, courseID, out.Plan.Operations)
	}
	e.record(ctx, out, opts.DryRun)
	return out, nil
}

// resolveCourse finds the target course id. exists is false when the course
// still has to be created.
func (e *Engine) resolveCourse(ctx context.Context, desired *course.Plan, opts RunOptions) (id string, exists bool, err error) {
	if opts.CourseID != "" {
		return opts.CourseID, true, nil
	}
	if desired.CourseID != "" {
		return desired.CourseID, true, nil
	}
	if desired.CourseName == "" {
		return "", false, ErrNoCourse
	}
	if e.cfg.Courses == nil {
		return "", false, fmt.Errorf("course %q needs a course lookup client", desired.CourseName)
	}

	id, found, err := e.cfg.Courses.FindCourse(ctx, desired.CourseName)
	if err != nil {
		return "", false, fmt.Errorf("find course %q: %w", desired.CourseName, err)
	}
	return id, found, nil
}

func (e *Engine) record(ctx context.Context, out *Outcome, dryRun bool) {
	if e.cfg.History == nil {
		return
	}
	run := history.FromReport(out.Report, dryRun, len(out.Plan.Conflicts))
	if err := e.cfg.History.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}
