package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"

	dserrors "github.com/vnykmshr/dispatch/pkg/common/errors"
	"github.com/vnykmshr/dispatch/pkg/common/validation"
	"github.com/vnykmshr/dispatch/pkg/metrics"
)

const (
	// DefaultMaxRetries is used when Category.MaxRetries is zero.
	DefaultMaxRetries = 3

	// DefaultTimeout is used when Category.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// DefaultStatsSchedule logs pool statistics every 30 seconds.
	DefaultStatsSchedule = "@every 30s"

	// StatsDisabled turns periodic statistics off when used as StatsSchedule.
	StatsDisabled = "-"

	// NoRetries disables retries for a category. A zero MaxRetries means
	// "use DefaultMaxRetries".
	NoRetries = -1

	maxDefaultPoolSize = 4
	defaultName        = "default"
	tracerName         = "github.com/vnykmshr/dispatch"
)

// DefaultPoolSize returns the number of CPU cores, capped at 4.
func DefaultPoolSize() int {
	n := runtime.NumCPU()
	if n > maxDefaultPoolSize {
		n = maxDefaultPoolSize
	}
	return n
}

// Category configures one class of work: its pool, retry budget, timeout
// and the execution target its workers run.
type Category struct {
	// Name identifies the category in Submit calls, logs and metrics.
	Name string `yaml:"name"`

	// PoolSize is the number of workers. Zero means DefaultPoolSize().
	PoolSize int `yaml:"pool_size"`

	// MaxRetries bounds how often a failed or timed-out job is attempted
	// again. Zero means DefaultMaxRetries; use NoRetries for none.
	MaxRetries int `yaml:"max_retries"`

	// Timeout is the per-attempt budget. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout"`

	// Handlers maps operation names to the functions workers run.
	Handlers Handlers `yaml:"-"`

	// OnWorkerStart runs before a worker's execution context starts.
	// A returned error (or panic) counts as a failed worker creation.
	OnWorkerStart func(workerID string) error `yaml:"-"`

	// OnWorkerStop runs after a worker's execution context exits.
	OnWorkerStop func(workerID string) `yaml:"-"`
}

func (c Category) withDefaults() Category {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize()
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries == NoRetries:
		c.MaxRetries = 0
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	// Handlers are resolved once; later edits to the caller's map are not seen.
	c.Handlers = maps.Clone(c.Handlers)
	return c
}

func (c Category) validate() error {
	if err := validation.ValidateNotEmpty("dispatch", "category.name", c.Name); err != nil {
		return err
	}
	if err := validation.ValidatePositive("dispatch", c.Name+".pool_size", c.PoolSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("dispatch", c.Name+".max_retries", c.MaxRetries); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("dispatch", c.Name+".timeout", c.Timeout); err != nil {
		return err
	}
	if err := validation.ValidateMinLen("dispatch", c.Name+".handlers", len(c.Handlers), 1); err != nil {
		return err
	}
	for op, h := range c.Handlers {
		if h == nil {
			return dserrors.NewValidationError("dispatch", c.Name+".handlers", op, "handler cannot be nil")
		}
	}
	return nil
}

// Config holds Manager configuration.
type Config struct {
	// Name labels the manager in logs and metrics.
	Name string

	// Categories are the task classes the manager serves. Immutable once
	// the manager is constructed.
	Categories []Category

	// StatsSchedule is a cron spec (robfig/cron standard syntax, including
	// descriptors such as "@every 30s") for periodic statistics logging.
	// Empty means DefaultStatsSchedule; StatsDisabled turns it off.
	StatsSchedule string

	// ReclaimOnCrash retries the job held by a crashed worker right away
	// instead of waiting for its timeout. The retry consumes one attempt.
	ReclaimOnCrash bool

	// Logger receives structured logs. Nil means JSON on stderr at Info.
	Logger *slog.Logger

	// Metrics is updated as jobs progress. Nil disables Prometheus metrics.
	Metrics *metrics.Registry

	// Tracer records one span per job. Nil means a no-op tracer.
	Tracer trace.Tracer

	// Reporters receive every periodic statistics snapshot.
	Reporters []StatsReporter
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.StatsSchedule == "" {
		c.StatsSchedule = DefaultStatsSchedule
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	cats := make([]Category, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = cat.withDefaults()
	}
	c.Categories = cats
	return c
}

func (c Config) validate() error {
	if err := validation.ValidateMinLen("dispatch", "categories", len(c.Categories), 1); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if err := cat.validate(); err != nil {
			return err
		}
		if seen[cat.Name] {
			return dserrors.NewValidationError("dispatch", "category.name", cat.Name, "duplicate category").
				WithHint("category names must be unique")
		}
		seen[cat.Name] = true
	}
	if _, err := c.schedule(); err != nil {
		return dserrors.NewValidationError("dispatch", "stats_schedule", c.StatsSchedule, err.Error()).
			WithHint(`use a cron spec such as "@every 30s"`)
	}
	return nil
}

// schedule returns nil when periodic statistics are disabled.
func (c Config) schedule() (cron.Schedule, error) {
	if c.StatsSchedule == StatsDisabled {
		return nil, nil
	}
	return cron.ParseStandard(c.StatsSchedule)
}

// FileConfig is the on-disk form of Config. Handlers cannot be expressed in
// YAML, so a FileConfig is turned into a Config with Bind.
//
//	name: vault
//	stats_schedule: "@every 30s"
//	categories:
//	  - name: fileProcessor
//	    pool_size: 4
//	    max_retries: 3  # 0 means DefaultMaxRetries (3); -1 disables retries
//	    timeout: 30s
type FileConfig struct {
	Name           string     `yaml:"name"`
	StatsSchedule  string     `yaml:"stats_schedule"`
	ReclaimOnCrash bool       `yaml:"reclaim_on_crash"`
	Categories     []Category `yaml:"categories"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &fc, nil
}

// Bind attaches handlers to each configured category and returns a Config.
// Every category must have an entry in handlers.
func (f *FileConfig) Bind(handlers map[string]Handlers) (Config, error) {
	cfg := Config{
		Name:           f.Name,
		StatsSchedule:  f.StatsSchedule,
		ReclaimOnCrash: f.ReclaimOnCrash,
		Categories:     make([]Category, 0, len(f.Categories)),
	}
	for _, cat := range f.Categories {
		h, ok := handlers[cat.Name]
		if !ok {
			return Config{}, dserrors.NewValidationError("dispatch", "handlers", cat.Name, "no handlers bound").
				WithHint("pass handlers for every category in the file")
		}
		cat.Handlers = h
		cfg.Categories = append(cfg.Categories, cat)
	}
	return cfg, nil
}
