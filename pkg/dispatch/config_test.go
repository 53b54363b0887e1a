package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vnykmshr/dispatch/internal/testutil"
	dserrors "github.com/vnykmshr/dispatch/pkg/common/errors"
)

func noopHandler(context.Context, Request) (any, error) { return nil, nil }

func TestCategoryDefaults(t *testing.T) {
	c := Category{Name: "c", Handlers: Handlers{"op": noopHandler}}.withDefaults()

	testutil.AssertEqual(t, c.PoolSize, DefaultPoolSize())
	testutil.AssertEqual(t, c.MaxRetries, DefaultMaxRetries)
	testutil.AssertEqual(t, c.Timeout, DefaultTimeout)

	c = Category{Name: "c", MaxRetries: NoRetries}.withDefaults()
	testutil.AssertEqual(t, c.MaxRetries, 0)
}

func TestDefaultPoolSize(t *testing.T) {
	n := DefaultPoolSize()
	if n < 1 || n > maxDefaultPoolSize {
		t.Errorf("DefaultPoolSize() = %d, want 1..%d", n, maxDefaultPoolSize)
	}
}

func TestHandlersCopiedAtConstruction(t *testing.T) {
	h := Handlers{"op": noopHandler}
	c := Category{Name: "c", Handlers: h}.withDefaults()
	h["other"] = noopHandler

	if _, ok := c.Handlers["other"]; ok {
		t.Error("category saw a handler added after construction")
	}
}

func TestNewValidation(t *testing.T) {
	handlers := Handlers{"op": noopHandler}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no categories", Config{}},
		{"empty name", Config{Categories: []Category{{Handlers: handlers}}}},
		{"negative pool size", Config{Categories: []Category{{Name: "c", PoolSize: -1, Handlers: handlers}}}},
		{"negative retries", Config{Categories: []Category{{Name: "c", MaxRetries: -2, Handlers: handlers}}}},
		{"negative timeout", Config{Categories: []Category{{Name: "c", Timeout: -time.Second, Handlers: handlers}}}},
		{"no handlers", Config{Categories: []Category{{Name: "c"}}}},
		{"nil handler", Config{Categories: []Category{{Name: "c", Handlers: Handlers{"op": nil}}}}},
		{"duplicate category", Config{Categories: []Category{
			{Name: "c", Handlers: handlers},
			{Name: "c", Handlers: handlers},
		}}},
		{"bad schedule", Config{
			StatsSchedule: "every now and then",
			Categories:    []Category{{Name: "c", Handlers: handlers}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			testutil.AssertError(t, err)
			if !dserrors.IsValidationError(err) {
				t.Errorf("expected validation error, got %T: %v", err, err)
			}
		})
	}
}

func TestConfigSchedule(t *testing.T) {
	s, err := Config{StatsSchedule: StatsDisabled}.schedule()
	testutil.AssertNoError(t, err)
	if s != nil {
		t.Error("disabled schedule should be nil")
	}

	s, err = Config{StatsSchedule: DefaultStatsSchedule}.schedule()
	testutil.AssertNoError(t, err)
	now := time.Now()
	if next := s.Next(now); next.Sub(now) > 31*time.Second {
		t.Errorf("next stats run in %v, want about 30s", next.Sub(now))
	}
}

const sampleYAML = `
name: vault
stats_schedule: "@every 1m"
reclaim_on_crash: true
categories:
  - name: fileProcessor
    pool_size: 2
    max_retries: 1
    timeout: 50ms
  - name: thumbnails
`

func TestParseConfig(t *testing.T) {
	fc, err := ParseConfig([]byte(sampleYAML))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, fc.Name, "vault")
	testutil.AssertEqual(t, fc.StatsSchedule, "@every 1m")
	testutil.AssertEqual(t, fc.ReclaimOnCrash, true)
	testutil.AssertEqual(t, len(fc.Categories), 2)
	testutil.AssertEqual(t, fc.Categories[0].PoolSize, 2)
	testutil.AssertEqual(t, fc.Categories[0].MaxRetries, 1)
	testutil.AssertEqual(t, fc.Categories[0].Timeout, 50*time.Millisecond)
}

func TestParseConfigErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":  "name: vault\nworkers: 4\n",
		"bad duration": "categories:\n  - name: c\n    timeout: soon\n",
		"bad yaml":     "categories: [\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			testutil.AssertError(t, err)
		})
	}

	fc, err := ParseConfig(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(fc.Categories), 0)
}

func TestParseConfigMaxRetries(t *testing.T) {
	fc, err := ParseConfig([]byte(`
categories:
  - name: implicit
    max_retries: 0
  - name: none
    max_retries: -1
`))
	testutil.AssertNoError(t, err)

	cfg, err := fc.Bind(map[string]Handlers{
		"implicit": {"op": noopHandler},
		"none":     {"op": noopHandler},
	})
	testutil.AssertNoError(t, err)

	m, err := New(cfg)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, m.cfg.Categories[0].MaxRetries, DefaultMaxRetries)
	testutil.AssertEqual(t, m.cfg.Categories[1].MaxRetries, 0)
}

func TestLoadConfigAndBind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadConfig(path)
	testutil.AssertNoError(t, err)

	_, err = fc.Bind(map[string]Handlers{"fileProcessor": {"op": noopHandler}})
	if !dserrors.IsValidationError(err) {
		t.Fatalf("Bind with missing handlers: %v", err)
	}

	cfg, err := fc.Bind(map[string]Handlers{
		"fileProcessor": {"op": noopHandler},
		"thumbnails":    {"op": noopHandler},
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.Name, "vault")
	testutil.AssertEqual(t, cfg.ReclaimOnCrash, true)
	testutil.AssertEqual(t, len(cfg.Categories), 2)

	m, err := New(cfg)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, m.cfg.Categories[1].PoolSize, DefaultPoolSize())
	testutil.AssertEqual(t, m.cfg.Categories[1].Timeout, DefaultTimeout)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	testutil.AssertError(t, err)
}
