package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/herald/store/sqlite"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Herald.Concurrency != 8 || cfg.RateLimit.Limit != 120 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heraldd.yaml")
	yml := `
addr: ":9090"
store:
  driver: postgres
  dsn: postgres://localhost/herald
queue:
  driver: redis
rate_limit:
  driver: redis
  limit: 10
  window: 30s
herald:
  concurrency: 2
  backoff_base: 1s
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HERALD_CONCURRENCY", "16")
	t.Setenv("HERALD_BACKOFF_MAX", "90s")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr != ":9090" || cfg.Store.Driver != "postgres" || cfg.Queue.Driver != "redis" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.RateLimit.Limit != 10 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Herald.Concurrency != 16 {
		t.Errorf("concurrency = %d, want env override 16", cfg.Herald.Concurrency)
	}
	if cfg.Herald.BackoffBase != time.Second || cfg.Herald.BackoffMax != 90*time.Second {
		t.Errorf("backoff = %v/%v", cfg.Herald.BackoffBase, cfg.Herald.BackoffMax)
	}
	// Unset file fields keep their defaults.
	if cfg.Herald.FanOut != 4 {
		t.Errorf("fan out = %d", cfg.Herald.FanOut)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := defaultConfig()
	lookup := func(key string) (string, bool) {
		if key == "HERALD_REQUEST_TIMEOUT" {
			return "soon", true
		}
		return "", false
	}
	if err := applyEnv(&cfg, lookup); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Driver = "cassandra"
	if err := cfg.validate(); err == nil {
		t.Error("unknown store accepted")
	}

	for _, driver := range []string{"postgres", "sqlite", "mongo"} {
		cfg = defaultConfig()
		cfg.Store.Driver = driver
		if err := cfg.validate(); err == nil {
			t.Errorf("%s without dsn accepted", driver)
		}
		cfg.Store.DSN = "x"
		if err := cfg.validate(); err != nil {
			t.Errorf("%s with dsn rejected: %v", driver, err)
		}
	}
}

func TestOpenStoreSqlite(t *testing.T) {
	ctx := context.Background()
	s, err := openStore(ctx, StoreConfig{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "heraldd.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, ok := s.(*sqlite.Store); !ok {
		t.Fatalf("store = %T, want *sqlite.Store", s)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}
