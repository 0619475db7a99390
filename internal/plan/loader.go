// Package plan loads declarative course plans and validates them into a
// course graph before any remote call is made.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/dates"
)

type options struct {
	fs       afero.Fs
	baseDir  string
	location *time.Location
}

// Option configures plan loading.
type Option func(*options)

// WithFS checks local upload sources against fsys. Without it, upload paths
// are classified but not checked for existence.
func WithFS(fsys afero.Fs) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithBaseDir resolves relative upload paths against dir.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// WithLocation sets the time zone used when the plan does not name one.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// Load parses a JSON or YAML plan document and validates it.
// It returns a *ParseError for malformed input and a *ValidationError listing
// every invariant violation.
func Load(raw []byte, opts ...Option) (*course.Plan, error) {
	o := newOptions(opts)

	data := bytes.TrimSpace(raw)
	if len(data) == 0 || data[0] != '{' {
		converted, err := yamlToJSON(raw)
		if err != nil {
			return nil, err
		}
		data = converted
	}
	return load(data, o)
}

// LoadFile reads the plan at path from fsys. The decoder is chosen by file
// extension; relative upload paths resolve against the plan's directory.
func LoadFile(fsys afero.Fs, path string, opts ...Option) (*course.Plan, error) {
	opts = append([]Option{WithFS(fsys), WithBaseDir(filepath.Dir(path))}, opts...)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		f, err := fsys.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening plan: %w", err)
		}
		defer f.Close()
		return LoadWorkbook(f, opts...)
	case ".json", ".yaml", ".yml":
		raw, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("reading plan: %w", err)
		}
		return Load(raw, opts...)
	default:
		return nil, fmt.Errorf("unsupported plan file type %q", filepath.Ext(path))
	}
}

func newOptions(opts []Option) options {
	o := options{location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func load(data []byte, o options) (*course.Plan, error) {
	if err := validateStructure(data); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Problems: []string{err.Error()}, Err: err}
	}

	p, violations := build(&doc, o)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	slog.Info("plan loaded",
		"course", firstNonEmpty(p.CourseID, p.CourseName),
		"epoch", p.Epoch.Format(dates.DateLayout),
		"topics", len(p.Topics),
		"coursework", countItems(p),
	)
	return p, nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, &ParseError{Problems: []string{err.Error()}, Err: err}
	}
	data, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, &ParseError{Problems: []string{err.Error()}, Err: err}
	}
	return data, nil
}

// normalizeYAML makes a decoded YAML tree JSON-compatible. Unquoted dates
// decode as time.Time and are turned back into their calendar form.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	case time.Time:
		if t.Equal(dates.Midnight(t)) {
			return t.Format(dates.DateLayout)
		}
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

func countItems(p *course.Plan) int {
	n := len(p.Ungrouped)
	for _, t := range p.Topics {
		n += len(t.Items)
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
