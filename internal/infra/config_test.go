package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("DISPATCH_MODE", "")
	t.Setenv("BATCH_WINDOW_SIZE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DispatchMode != "substrate" {
		t.Fatalf("DispatchMode = %q, want substrate", cfg.DispatchMode)
	}
	if cfg.BatchWindowSize != 2 {
		t.Fatalf("BatchWindowSize = %d, want 2", cfg.BatchWindowSize)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("PollInterval = %s, want 10s", cfg.PollInterval)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigRejectsUnknownDispatchMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("DISPATCH_MODE", "sideways")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown dispatch mode")
	}
}
