package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults should succeed: %v", err)
	}

	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("expected default interval 1m, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Providers.BaseURL != "https://services.swpc.noaa.gov" {
		t.Fatalf("unexpected provider base url: %s", cfg.Providers.BaseURL)
	}
	if len(cfg.HAPI.Indices) != 2 {
		t.Fatalf("expected a two-entry fallback chain, got %d", len(cfg.HAPI.Indices))
	}
	if cfg.HAPI.Indices[0].Dataset != "OMNI2_H0_MRG1HR" {
		t.Fatalf("unexpected primary dataset: %s", cfg.HAPI.Indices[0].Dataset)
	}
	if cfg.HAPI.Aliases["DST1800"] != "dst_index" {
		t.Fatalf("unexpected aliases: %v", cfg.HAPI.Aliases)
	}
	if len(cfg.Monitor.CriticalEndpoints) != 4 {
		t.Fatalf("expected 4 critical endpoints, got %d", len(cfg.Monitor.CriticalEndpoints))
	}
	if cfg.Metrics.ListenAddr != "" {
		t.Fatal("metrics listener should default to disabled")
	}
	if cfg.Database.DSN != "" {
		t.Fatal("archive should default to disabled")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults should succeed: %v", err)
	}

	cfg := *base
	cfg.Scheduler.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero interval should be rejected")
	}

	cfg = *base
	cfg.HAPI.Indices = []HAPIEndpoint{{Server: "https://example.org/hapi"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("an index entry without dataset should be rejected")
	}

	cfg = *base
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled telegram without credentials should be rejected")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Fatalf("expected config default 500, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(42); got != 42 {
		t.Fatalf("expected override 42, got %d", got)
	}
}
