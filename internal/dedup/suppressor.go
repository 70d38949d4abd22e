package dedup

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/rawblock/whale-classifier/internal/models"
)

const (
	window           = 10 * time.Second // W, spec.md §4.6
	usdAbsTolerance  = 5.0
	usdRelTolerance  = 0.0015
	neverSuppressUSD = 5_000_000
	lookbackCount    = 200 // M, L2 storage query cap
)

// Lookback is the L2 storage-backed collaborator: the last M records for a
// key within the match window. Implemented by the sink's storage layer.
type Lookback interface {
	RecentRecords(ctx context.Context, whaleAddress, tokenSymbol string, within time.Duration, limit int) ([]Record, error)
	UpdateConfidence(ctx context.Context, hash string, rec Record) error
}

// protocolKinds never get suppressed — protocol interactions are always
// recorded individually for audit.
var protocolKinds = map[string]bool{
	"DEFI": true, "LIQUIDITY": true, "BRIDGE": true, "STAKING": true,
}

// Outcome is what the suppressor decided for an incoming record.
type Outcome struct {
	Suppressed bool
	Merged     bool // true if an existing record was updated in place instead
	Event      *Event
}

// Event is the structured suppression decision, emitted whenever a match is
// found (suppressed or merged), mirroring the shape of a dashboard alert.
type Event struct {
	IncomingHash string    `json:"incoming_hash"`
	ExistingHash string    `json:"existing_hash"`
	Reason       string    `json:"reason"`
	Pattern      string    `json:"pattern"`
	TimeDiff     float64   `json:"time_diff_seconds"`
	USDDiff      float64   `json:"usd_diff"`
	At           time.Time `json:"at"`
}

// Suppressor implements C6: L1 in-memory ring + L2 storage lookback
// near-duplicate detection.
type Suppressor struct {
	l1       *ringCache
	l2       Lookback
	now      func() time.Time
}

// NewSuppressor builds a Suppressor. l2 may be nil to run L1-only (useful
// in tests or before the sink is wired up).
func NewSuppressor(l2 Lookback) *Suppressor {
	return &Suppressor{l1: newRingCache(), l2: l2, now: time.Now}
}

// Check decides whether rec is a near-duplicate of something already seen,
// and if not, records it into L1 for future lookups.
func (s *Suppressor) Check(ctx context.Context, rec Record) Outcome {
	if rec.USDValue > neverSuppressUSD {
		s.l1.observe(rec)
		return Outcome{}
	}
	if protocolKinds[string(rec.Kind)] {
		s.l1.observe(rec)
		return Outcome{}
	}

	candidates := s.l1.recent(rec.WhaleAddress, rec.TokenSymbol)
	if s.l2 != nil {
		if stored, err := s.l2.RecentRecords(ctx, rec.WhaleAddress, rec.TokenSymbol, window, lookbackCount); err != nil {
			log.Printf("[dedup] L2 lookback failed for %s/%s: %v", rec.WhaleAddress, rec.TokenSymbol, err)
		} else {
			candidates = append(candidates, stored...)
		}
	}

	for _, existing := range candidates {
		pattern, ok := match(existing, rec)
		if !ok {
			continue
		}

		evt := &Event{
			IncomingHash: rec.Hash,
			ExistingHash: existing.Hash,
			Reason:       "near-duplicate",
			Pattern:      pattern,
			TimeDiff:     math.Abs(rec.BlockTime.Sub(existing.BlockTime).Seconds()),
			USDDiff:      math.Abs(rec.USDValue - existing.USDValue),
			At:           s.now(),
		}

		if rec.Confidence > existing.Confidence {
			s.l1.update(existing.Hash, rec)
			if s.l2 != nil {
				if err := s.l2.UpdateConfidence(ctx, existing.Hash, rec); err != nil {
					log.Printf("[dedup] L2 merge update failed for %s: %v", existing.Hash, err)
				}
			}
			return Outcome{Merged: true, Event: evt}
		}
		return Outcome{Suppressed: true, Event: evt}
	}

	s.l1.observe(rec)
	return Outcome{}
}

// match implements spec.md §4.6's match predicate: time window, USD
// tolerance, and one of the four patterns.
func match(a, b Record) (pattern string, ok bool) {
	if math.Abs(a.BlockTime.Sub(b.BlockTime).Seconds()) > window.Seconds() {
		return "", false
	}

	diff := math.Abs(a.USDValue - b.USDValue)
	maxVal := math.Max(a.USDValue, b.USDValue)
	withinTolerance := diff <= usdAbsTolerance || (maxVal > 0 && diff/maxVal <= usdRelTolerance)
	if !withinTolerance {
		return "", false
	}

	switch {
	case isBuySell(a.Kind, b.Kind):
		return "mirror", true
	case isShadow(a.Kind, b.Kind):
		return "shadow", true
	case a.Kind == b.Kind && a.CounterpartyKind != b.CounterpartyKind:
		return "counterparty_mismatch", true
	case a.Kind == b.Kind && a.IsCEXTransaction != b.IsCEXTransaction:
		return "cex_flag_mismatch", true
	}
	return "", false
}

func isBuySell(a, b models.ClassificationKind) bool {
	return (a == models.ClassBuy && b == models.ClassSell) || (a == models.ClassSell && b == models.ClassBuy)
}

func isShadow(a, b models.ClassificationKind) bool {
	isTransfer := func(k models.ClassificationKind) bool { return k == models.ClassTransfer }
	isDirectional := func(k models.ClassificationKind) bool { return k == models.ClassBuy || k == models.ClassSell }
	return (isTransfer(a) && isDirectional(b)) || (isTransfer(b) && isDirectional(a))
}
