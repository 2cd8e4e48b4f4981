package config

import (
	"testing"
	"time"
)

func TestLoad_IngestionTuningDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg := Load()
	if cfg.TradeSafeLag != 2*time.Hour {
		t.Errorf("TradeSafeLag = %v, want 2h", cfg.TradeSafeLag)
	}
	if cfg.TradeChunk != 12*time.Hour {
		t.Errorf("TradeChunk = %v, want 12h", cfg.TradeChunk)
	}
	if cfg.ActiveWindow != 48*time.Hour {
		t.Errorf("ActiveWindow = %v, want 48h", cfg.ActiveWindow)
	}
	if cfg.RevisionChunk != 4*time.Hour {
		t.Errorf("RevisionChunk = %v, want 4h", cfg.RevisionChunk)
	}
	if cfg.ArchiveDelay != 48*time.Hour {
		t.Errorf("ArchiveDelay = %v, want 48h", cfg.ArchiveDelay)
	}
	if cfg.HotRetention != 7*24*time.Hour {
		t.Errorf("HotRetention = %v, want 168h", cfg.HotRetention)
	}
	if cfg.ArchiveWorkers != 10 {
		t.Errorf("ArchiveWorkers = %d, want 10", cfg.ArchiveWorkers)
	}
}

func TestLoad_IngestionTuningOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("TRADE_CHUNK", "6h")
	t.Setenv("HOT_RETENTION", "72h")
	t.Setenv("ARCHIVE_WORKERS", "4")

	cfg := Load()
	if cfg.TradeChunk != 6*time.Hour {
		t.Errorf("TradeChunk = %v, want 6h", cfg.TradeChunk)
	}
	if cfg.HotRetention != 72*time.Hour {
		t.Errorf("HotRetention = %v, want 72h", cfg.HotRetention)
	}
	if cfg.ArchiveWorkers != 4 {
		t.Errorf("ArchiveWorkers = %d, want 4", cfg.ArchiveWorkers)
	}
}

func TestParseAreas(t *testing.T) {
	c := &Config{Areas: " SE3 ,,SE4 "}
	got := c.ParseAreas()
	if len(got) != 2 || got[0] != "SE3" || got[1] != "SE4" {
		t.Errorf("ParseAreas = %v, want [SE3 SE4]", got)
	}
}
