// Command classroom-sync reconciles a Google Classroom course with a
// declarative course plan.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/afero"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/engine"
	"github.com/p-n-ai/pai-classroom/internal/history"
	"github.com/p-n-ai/pai-classroom/internal/plan"
	"github.com/p-n-ai/pai-classroom/internal/platform/cache"
	"github.com/p-n-ai/pai-classroom/internal/platform/config"
	"github.com/p-n-ai/pai-classroom/internal/platform/database"
	"github.com/p-n-ai/pai-classroom/internal/remote"
	"github.com/p-n-ai/pai-classroom/internal/remote/google"
	"github.com/p-n-ai/pai-classroom/internal/uploads"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps()))
}

// services are the remote clients a run needs.
type services struct {
	classroom remote.Classroom
	courses   remote.Courses
	drive     remote.Drive
	history   history.RunStore
	cache     uploads.Cache
	close     func()
}

// deps lets tests replace the file system and the remote services.
type deps struct {
	fs       afero.Fs
	services func(ctx context.Context, cfg *config.Config) (*services, error)
}

func defaultDeps() deps {
	return deps{fs: afero.NewOsFs(), services: connect}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, d deps) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	fset := flag.NewFlagSet("classroom-sync", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&cfg.Sync.PlanPath, "plan", cfg.Sync.PlanPath, "course plan (.yaml, .yml, .json or .xlsx)")
	fset.StringVar(&cfg.Sync.CourseID, "course", cfg.Sync.CourseID, "course id, overrides the plan")
	fset.BoolVar(&cfg.Sync.DryRun, "dry-run", cfg.Sync.DryRun, "print the planned operations without applying them")
	fset.IntVar(&cfg.Sync.Workers, "workers", cfg.Sync.Workers, "concurrent API calls")
	export := fset.String("export", "", "write the loaded plan to this .xlsx workbook and exit")
	if err := fset.Parse(args); err != nil {
		return 2
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 1
	}
	slog.SetDefault(newLogger(cfg.Log, stderr))

	desired, err := plan.LoadFile(d.fs, cfg.Sync.PlanPath, plan.WithLocation(cfg.Location()))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if *export != "" {
		if err := exportPlan(d.fs, *export, desired); err != nil {
			fmt.Fprintf(stderr, "export failed: %v\n", err)
			return 1
		}
		slog.Info("plan exported", "path", *export)
		return 0
	}

	svc, err := d.services(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect", "error", err)
		return 1
	}
	defer svc.close()

	eng := engine.New(engine.Config{
		Classroom: svc.classroom,
		Courses:   svc.courses,
		Uploader: uploads.New(uploads.Config{
			Drive:    svc.drive,
			FS:       d.fs,
			Cache:    svc.cache,
			ParentID: cfg.Google.UploadFolderID,
		}),
		History: svc.history,
		Workers: cfg.Sync.Workers,
	})

	out, err := eng.Run(ctx, desired, engine.RunOptions{CourseID: cfg.Sync.CourseID, DryRun: cfg.Sync.DryRun})
	if err != nil {
		slog.Error("run aborted", "error", err)
		return 1
	}

	printOutcome(stdout, out)
	if out.Report.Failed() {
		return 1
	}
	return 0
}

func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func exportPlan(fs afero.Fs, path string, p *course.Plan) error {
	if p.Empty() {
		return errors.New("plan has nothing to export")
	}
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if err := plan.ExportWorkbook(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printOutcome(w io.Writer, out *engine.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tOPERATION\tREMOTE ID\tREASON")
	for _, e := range out.Report.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Status, e.Operation, e.RemoteID, e.Reason)
	}
	tw.Flush()

	for _, c := range out.Plan.Conflicts {
		fmt.Fprintf(w, "conflict: %s\n", c)
	}
	id := out.CourseID
	if id == "" {
		id = "(new course)"
	}
	fmt.Fprintf(w, "course %s: %s\n", id, out.Report.Summary())
}

// connect builds the Google clients and the optional history and cache
// backends.
func connect(ctx context.Context, cfg *config.Config) (*services, error) {
	clients, err := google.NewClient(ctx, google.Credentials{
		AccessToken:     cfg.Google.AccessToken,
		CredentialsFile: cfg.Google.CredentialsFile,
		TokenFile:       cfg.Google.TokenFile,
		UserAgent:       cfg.Google.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	svc := &services{
		classroom: clients.Classroom,
		courses:   clients.Classroom,
		drive:     clients.Drive,
	}
	var closers []func()
	svc.close = func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Database.URL != "" {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			slog.Warn("run history disabled", "error", err)
		} else {
			closers = append(closers, db.Close)
			store, err := db.History()
			if err != nil {
				slog.Warn("run history disabled", "error", err)
			} else {
				svc.history = store
			}
		}
	}
	if cfg.Cache.URL != "" {
		c, err := cache.Open(ctx, cfg.Cache)
		if err != nil {
			slog.Warn("upload cache kept in memory", "error", err)
		} else {
			closers = append(closers, func() { c.Close() })
			svc.cache = c.Uploads()
		}
	}
	return svc, nil
}
