// Package database opens the PostgreSQL pool that backs run history.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-classroom/internal/history"
	"github.com/p-n-ai/pai-classroom/internal/platform/config"
)

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL and applies the pool sizes.
func ParseURL(url string, maxConns, minConns int) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if minConns >= 0 && minConns <= maxConns {
		cfg.MinConns = int32(minConns)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	return cfg, nil
}

// Open connects to the database and makes sure the history tables exist.
func Open(ctx context.Context, c config.DatabaseConfig) (*DB, error) {
	cfg, err := ParseURL(c.URL, c.MaxConns, c.MinConns)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := history.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("database connected", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return &DB{Pool: pool}, nil
}

// History returns the run store backed by this database.
func (db *DB) History() (*history.PostgresStore, error) {
	return history.NewPostgresStore(db.Pool)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
