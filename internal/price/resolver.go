// Package price implements C2, the Token & Price Resolver: a built-in
// stablecoin table plus a staleness-budget cache over the last observed
// price for everything else.
package price

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var stablecoins = map[string]bool{
	"USDC": true, "USDT": true, "DAI": true, "BUSD": true,
	"TUSD": true, "FRAX": true, "USDP": true, "GUSD": true,
}

type observation struct {
	price     decimal.Decimal
	observedAt time.Time
}

// Resolver answers price(symbol|token_addr, at_time) -> usd_per_unit | absent.
// Safe for concurrent use by enrichment workers.
type Resolver struct {
	mu         sync.RWMutex
	last       map[string]observation
	staleness  time.Duration
}

func NewResolver(staleness time.Duration) *Resolver {
	return &Resolver{
		last:      make(map[string]observation),
		staleness: staleness,
	}
}

// Price returns (usd_per_unit, true) when known and fresh; (zero, false)
// when price_missing should be flagged.
func (r *Resolver) Price(symbolOrAddr string, at time.Time) (decimal.Decimal, bool) {
	key := strings.ToUpper(symbolOrAddr)
	if stablecoins[key] {
		return decimal.NewFromInt(1), true
	}

	r.mu.RLock()
	obs, ok := r.last[key]
	r.mu.RUnlock()
	if !ok {
		return decimal.Zero, false
	}
	if at.Sub(obs.observedAt) > r.staleness || obs.observedAt.Sub(at) > r.staleness {
		return decimal.Zero, false
	}
	return obs.price, true
}

// Observe records a freshly seen price for symbolOrAddr, feeding the
// staleness-budget cache used by subsequent Price calls.
func (r *Resolver) Observe(symbolOrAddr string, usdPerUnit decimal.Decimal, at time.Time) {
	key := strings.ToUpper(symbolOrAddr)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.last[key]; ok && existing.observedAt.After(at) {
		return
	}
	r.last[key] = observation{price: usdPerUnit, observedAt: at}
}
