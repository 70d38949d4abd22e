package price

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStablecoinAlwaysOne(t *testing.T) {
	r := NewResolver(120 * time.Second)
	p, ok := r.Price("usdc", time.Now())
	if !ok || !p.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1.0 for USDC, got %v ok=%v", p, ok)
	}
}

func TestObservedPriceWithinStalenessBudget(t *testing.T) {
	r := NewResolver(120 * time.Second)
	now := time.Now()
	r.Observe("WETH", decimal.NewFromInt(3000), now)

	p, ok := r.Price("WETH", now.Add(60*time.Second))
	if !ok || !p.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected fresh price, got %v ok=%v", p, ok)
	}
}

func TestStalePriceMissing(t *testing.T) {
	r := NewResolver(120 * time.Second)
	now := time.Now()
	r.Observe("WETH", decimal.NewFromInt(3000), now)

	_, ok := r.Price("WETH", now.Add(200*time.Second))
	if ok {
		t.Fatalf("expected price_missing beyond staleness budget")
	}
}

func TestUnknownTokenMissing(t *testing.T) {
	r := NewResolver(120 * time.Second)
	_, ok := r.Price("NEVERSEEN", time.Now())
	if ok {
		t.Fatalf("expected miss for never-observed token")
	}
}
