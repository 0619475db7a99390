package cache

import (
	"testing"

	"github.com/p-n-ai/pai-classroom/internal/platform/config"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantDB  int
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", 0, false},
		{"valid-with-db", "redis://localhost:6379/3", 3, false},
		{"wrong-scheme", "http://localhost:6379", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if opts.DB != tt.wantDB {
				t.Errorf("DB = %d, want %d", opts.DB, tt.wantDB)
			}
			if opts.DialTimeout != dialTimeout || opts.ReadTimeout != ioTimeout || opts.WriteTimeout != ioTimeout {
				t.Errorf("timeouts = %v/%v/%v, want %v/%v/%v", opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout, dialTimeout, ioTimeout, ioTimeout)
			}
		})
	}
}

func TestOpen_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	ctx := t.Context()
	_, err := Open(ctx, config.CacheConfig{URL: "redis://localhost:59999"})
	if err == nil {
		t.Fatal("Open() should return error for unreachable host")
	}
}
