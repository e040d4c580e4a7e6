package config_test

import (
	"testing"
	"time"

	"github.com/neomorfeo/commerceiq/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabasePath != "commerceiq.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "commerceiq.db")
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", cfg.SweepInterval)
	}
	if cfg.SweepBatchSize != 100 {
		t.Errorf("SweepBatchSize = %d, want 100", cfg.SweepBatchSize)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SWEEP_BATCH_SIZE", "25")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v, want 30s", cfg.SweepInterval)
	}
	if cfg.SweepBatchSize != 25 {
		t.Errorf("SweepBatchSize = %d, want 25", cfg.SweepBatchSize)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
