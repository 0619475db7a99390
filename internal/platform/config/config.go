// Package config loads application configuration from environment variables.
// All variables use the CLASSROOM_ prefix. A .env file is read first when
// present; variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Google   GoogleConfig
	Sync     SyncConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Log      LogConfig
}

// GoogleConfig holds Google API credentials. The first configured source
// wins: access token, stored user token, credentials file, then application
// default credentials.
type GoogleConfig struct {
	CredentialsFile string
	TokenFile       string
	AccessToken     string
	UserAgent       string
	UploadFolderID  string
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	PlanPath string
	CourseID string
	Workers  int
	Timezone string
	DryRun   bool
}

// DatabaseConfig holds PostgreSQL connection settings for run history.
// History is disabled when URL is empty.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis settings for the upload cache. An empty
// URL keeps the cache in memory.
type CacheConfig struct {
	URL string
	TTL time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with CLASSROOM_ prefix.
func Load() (*Config, error) {
	envFile := envStr("CLASSROOM_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}

	cfg := &Config{
		Google: GoogleConfig{
			CredentialsFile: envStr("CLASSROOM_GOOGLE_CREDENTIALS_FILE", ""),
			TokenFile:       envStr("CLASSROOM_GOOGLE_TOKEN_FILE", ""),
			AccessToken:     envStr("CLASSROOM_GOOGLE_ACCESS_TOKEN", ""),
			UserAgent:       envStr("CLASSROOM_GOOGLE_USER_AGENT", "classroom-sync"),
			UploadFolderID:  envStr("CLASSROOM_GOOGLE_UPLOAD_FOLDER_ID", ""),
		},
		Sync: SyncConfig{
			PlanPath: envStr("CLASSROOM_PLAN", "course.yaml"),
			CourseID: envStr("CLASSROOM_COURSE_ID", ""),
			Workers:  envInt("CLASSROOM_WORKERS", 4),
			Timezone: envStr("CLASSROOM_TIMEZONE", "UTC"),
			DryRun:   envBool("CLASSROOM_DRY_RUN", false),
		},
		Database: DatabaseConfig{
			URL:      envStr("CLASSROOM_DATABASE_URL", ""),
			MaxConns: envInt("CLASSROOM_DATABASE_MAX_CONNS", 5),
			MinConns: envInt("CLASSROOM_DATABASE_MIN_CONNS", 1),
		},
		Cache: CacheConfig{
			URL: envStr("CLASSROOM_CACHE_URL", ""),
			TTL: envDuration("CLASSROOM_CACHE_TTL", 30*24*time.Hour),
		},
		Log: LogConfig{
			Level:  envStr("CLASSROOM_LOG_LEVEL", "info"),
			Format: envStr("CLASSROOM_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Sync.PlanPath == "" {
		return fmt.Errorf("CLASSROOM_PLAN is required")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("CLASSROOM_WORKERS must be at least 1, got %d", c.Sync.Workers)
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		return fmt.Errorf("CLASSROOM_TIMEZONE: %w", err)
	}
	if c.Google.TokenFile != "" && c.Google.CredentialsFile == "" {
		return fmt.Errorf("CLASSROOM_GOOGLE_TOKEN_FILE needs CLASSROOM_GOOGLE_CREDENTIALS_FILE")
	}
	if c.Database.URL != "" && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("CLASSROOM_DATABASE_MIN_CONNS (%d) exceeds CLASSROOM_DATABASE_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("CLASSROOM_LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("CLASSROOM_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// Location returns the default plan time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
