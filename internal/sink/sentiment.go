package sink

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

// SentimentCounters is the in-memory rollup a (currently out-of-scope)
// sentiment aggregator would read: per-token buy/sell pressure, updated
// after every successful upsert.
type SentimentCounters struct {
	mu     sync.RWMutex
	buys   map[string]decimal.Decimal
	sells  map[string]decimal.Decimal
	volume map[string]int
}

// NewSentimentCounters builds an empty rollup.
func NewSentimentCounters() *SentimentCounters {
	return &SentimentCounters{
		buys:   make(map[string]decimal.Decimal),
		sells:  make(map[string]decimal.Decimal),
		volume: make(map[string]int),
	}
}

// Observe folds one stored record's classification into the per-token
// buy/sell pressure counters.
func (c *SentimentCounters) Observe(rec models.WhaleRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.volume[rec.TokenSymbol]++
	switch rec.Classification {
	case models.ClassBuy, models.ClassModerateBuy:
		c.buys[rec.TokenSymbol] = c.buys[rec.TokenSymbol].Add(rec.USDValue)
	case models.ClassSell, models.ClassModerateSell:
		c.sells[rec.TokenSymbol] = c.sells[rec.TokenSymbol].Add(rec.USDValue)
	}
}

// Snapshot returns the buy/sell USD totals and event count for one token.
func (c *SentimentCounters) Snapshot(token string) (buyUSD, sellUSD decimal.Decimal, count int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buys[token], c.sells[token], c.volume[token]
}
