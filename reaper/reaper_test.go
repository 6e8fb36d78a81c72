package reaper

import (
	"context"
	"strings"
	"testing"
	"time"

	appconfig "github.com/lordmallam/orca/config"
)

func TestStaleCutoff(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cutoff := staleCutoff(now, 120*time.Second)
	if want := now.Add(-120 * time.Second); !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}

	// A record observed exactly at the cutoff must survive the strict
	// comparison in the delete statement.
	if !strings.Contains(deleteStaleQuery, "last_updated < $1") {
		t.Errorf("delete must use a strict comparison: %s", deleteStaleQuery)
	}
}

func TestReaperDoubleStart(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Reaper.Interval = time.Hour
	cfg.Reaper.FreshnessWindow = 2 * time.Minute

	r := NewReaper(nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second start should fail while running")
	}

	cancel()
	r.Stop()
}

func TestNewReaperConfig(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Reaper.Interval = 60 * time.Second
	cfg.Reaper.FreshnessWindow = 120 * time.Second

	r := NewReaper(nil, cfg)
	if r.interval != 60*time.Second {
		t.Errorf("interval = %v, want 60s", r.interval)
	}
	if r.window != 120*time.Second {
		t.Errorf("window = %v, want 120s", r.window)
	}
}
