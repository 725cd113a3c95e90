package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected default env to be dev, got %s", cfg.AppEnv)
	}
	if cfg.SnapshotInterval != 24*time.Hour {
		t.Fatalf("expected 24h snapshot interval, got %s", cfg.SnapshotInterval)
	}
	if cfg.HoldSufficiency {
		t.Fatal("expected sufficiency policy off by default")
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HOLD_SUFFICIENCY", "true")
	t.Setenv("ARCHIVE_AGE", "720h")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.HoldSufficiency {
		t.Fatal("expected sufficiency policy on")
	}
	if cfg.ArchiveAge != 720*time.Hour {
		t.Fatalf("expected 720h archive age, got %s", cfg.ArchiveAge)
	}
	if cfg.ShutdownPeriod != 5*time.Second {
		t.Fatalf("expected 5s shutdown, got %s", cfg.ShutdownPeriod)
	}
}

func TestLoadRequiresBackendsOutsideDev(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL missing in production")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("ARCHIVE_INTERVAL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid ARCHIVE_INTERVAL")
	}
}
