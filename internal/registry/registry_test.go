package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestObserveThenLookup(t *testing.T) {
	r := New()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Observe("0xwhale", decimal.NewFromInt(300_000), "USDC", now)

	stats, ok := r.Lookup("0xwhale")
	if !ok {
		t.Fatalf("expected whale to be found")
	}
	if stats.TradeCount != 1 {
		t.Fatalf("trade count = %d, want 1", stats.TradeCount)
	}
}

func TestLookupMissingWhale(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("0xnobody"); ok {
		t.Fatalf("expected not-found for unobserved whale")
	}
}

func TestSnapshotAndRehydrateRoundTrip(t *testing.T) {
	r := New()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r.Observe("0xproven", decimal.NewFromInt(60_000), "ETH", now)
	}

	path := filepath.Join(t.TempDir(), "registry.json")
	if err := r.Snapshot(path); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	r2 := New()
	if err := r2.Rehydrate(path); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	stats, ok := r2.Lookup("0xproven")
	if !ok {
		t.Fatalf("expected rehydrated whale to be found")
	}
	if stats.TradeCount != 5 {
		t.Fatalf("trade count after rehydrate = %d, want 5", stats.TradeCount)
	}
	if !stats.IsProven {
		t.Fatalf("expected proven whale after 5 trades of $60k (>=$250k total)")
	}
}

func TestRehydrateMissingFileIsNotError(t *testing.T) {
	r := New()
	if err := r.Rehydrate(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Fatalf("expected no error for missing snapshot file, got %v", err)
	}
}
