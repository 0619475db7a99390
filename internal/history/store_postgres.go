package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id          uuid PRIMARY KEY,
	course_id   text NOT NULL,
	started_at  timestamptz NOT NULL,
	finished_at timestamptz NOT NULL,
	dry_run     boolean NOT NULL DEFAULT false,
	succeeded   integer NOT NULL DEFAULT 0,
	failed      integer NOT NULL DEFAULT 0,
	skipped     integer NOT NULL DEFAULT 0,
	conflicts   integer NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sync_runs_course_started_idx ON sync_runs (course_id, started_at DESC);
CREATE TABLE IF NOT EXISTS sync_operations (
	run_id      uuid NOT NULL REFERENCES sync_runs (id) ON DELETE CASCADE,
	position    integer NOT NULL,
	op_key      text NOT NULL,
	kind        text NOT NULL,
	operation   text NOT NULL,
	status      text NOT NULL,
	reason      text,
	remote_id   text,
	duration_ms bigint NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);`

// EnsureSchema creates the history tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// PostgresStore is a PostgreSQL-backed RunStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a run store on pool. Call EnsureSchema first.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sync_runs (id, course_id, started_at, finished_at, dry_run, succeeded, failed, skipped, conflicts)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID,
		run.CourseID,
		run.StartedAt,
		run.FinishedAt,
		run.DryRun,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.Conflicts,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for i, e := range run.Entries {
		batch.Queue(
			`INSERT INTO sync_operations (run_id, position, op_key, kind, operation, status, reason, remote_id, duration_ms)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.ID,
			i,
			e.Key,
			e.Kind,
			e.Operation,
			e.Status,
			nullIfEmpty(e.Reason),
			nullIfEmpty(e.RemoteID),
			e.Duration.Milliseconds(),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert operations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id::text, course_id, started_at, finished_at, dry_run, succeeded, failed, skipped, conflicts
	FROM sync_runs`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return s.getRunByQuery(ctx, selectRun+` WHERE id = $1::uuid`, id)
}

func (s *PostgresStore) LatestRun(ctx context.Context, courseID string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return s.getRunByQuery(ctx, selectRun+` WHERE course_id = $1 ORDER BY started_at DESC LIMIT 1`, courseID)
}

func (s *PostgresStore) getRunByQuery(ctx context.Context, query string, arg string) (*Run, error) {
	run := &Run{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&run.ID,
		&run.CourseID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.DryRun,
		&run.Succeeded,
		&run.Failed,
		&run.Skipped,
		&run.Conflicts,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, arg)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT op_key, kind, operation, status, reason, remote_id, duration_ms
		 FROM sync_operations
		 WHERE run_id = $1::uuid
		 ORDER BY position ASC`,
		run.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	run.Entries = []Entry{}
	for rows.Next() {
		var e Entry
		var reason, remoteID *string
		var durationMS int64
		if err := rows.Scan(&e.Key, &e.Kind, &e.Operation, &e.Status, &reason, &remoteID, &durationMS); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if reason != nil {
			e.Reason = *reason
		}
		if remoteID != nil {
			e.RemoteID = *remoteID
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		run.Entries = append(run.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return run, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
