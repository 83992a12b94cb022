package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recruitflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	// Point at an empty directory so no stray config file is picked up.
	path := writeConfig(t, "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected default driver memory, got %q", cfg.Storage.Driver)
	}
	if cfg.Scheduler.TickSeconds != 1 {
		t.Fatalf("expected default tick 1s, got %d", cfg.Scheduler.TickSeconds)
	}
	if cfg.Worker.Concurrency != 4 || cfg.Worker.QueueSize != 64 {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Worker)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
storage:
  driver: postgres
  postgres:
    host: db.internal
    user: recruit
    password: hunter2
    name: recruiting
sweep:
  orgs: [org-1, org-2]
log:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected addr :9090, got %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Storage.Driver)
	}
	// Defaults fill the fields the file leaves out.
	if cfg.Storage.Postgres.Port != 5432 || cfg.Storage.Postgres.SSLMode != "disable" {
		t.Fatalf("unexpected postgres defaults: %+v", cfg.Storage.Postgres)
	}
	if len(cfg.Sweep.Orgs) != 2 {
		t.Fatalf("expected 2 sweep orgs, got %v", cfg.Sweep.Orgs)
	}

	want := "host=db.internal port=5432 user=recruit password=hunter2 dbname=recruiting sslmode=disable"
	if got := cfg.PostgresDSN(); got != want {
		t.Fatalf("PostgresDSN:\n got %q\nwant %q", got, want)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: cassandra\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}
