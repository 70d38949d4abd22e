package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WhaleRecord is the stored, whale-perspective result of the pipeline.
// Primary key is (chain, tx_hash). CEX-internal transfers between the same
// entity are never stored.
type WhaleRecord struct {
	Chain                Chain              `json:"chain"`
	TxHash               string             `json:"tx_hash"`
	BlockTime            time.Time          `json:"block_time"`
	WhaleAddress         string             `json:"whale_address,omitempty"`
	CounterpartyAddress  string             `json:"counterparty_address,omitempty"`
	CounterpartyKind     EntityKind         `json:"counterparty_kind"`
	IsCEXTransaction     bool               `json:"is_cex_transaction"`
	Classification       ClassificationKind `json:"classification"`
	Confidence           float64            `json:"confidence"`
	TokenSymbol          string             `json:"token_symbol"`
	USDValue             decimal.Decimal    `json:"usd_value"`
	FromLabel            string             `json:"from_label,omitempty"`
	ToLabel              string             `json:"to_label,omitempty"`
	Evidence             []string           `json:"evidence"`
	SourceID             string             `json:"source_id"`
	IngestedAt           time.Time          `json:"ingested_at"`
}

// Key returns the (chain, tx_hash) composite primary key.
func (r WhaleRecord) Key() string {
	return string(r.Chain) + ":" + r.TxHash
}

// WhaleStats tracks cumulative per-whale activity.
type WhaleStats struct {
	WhaleAddress    string          `json:"whale_address"`
	TradeCount      int             `json:"trade_count"`
	TotalUSD        decimal.Decimal `json:"total_usd"`
	Tokens          map[string]bool `json:"tokens_set"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
	SmartMoneyScore float64         `json:"smart_money_score"`
	IsProven        bool            `json:"is_proven"`
}

// Observe folds a new classified trade into the stats and recomputes the
// derived IsProven/SmartMoneyScore fields.
func (s *WhaleStats) Observe(usd decimal.Decimal, token string, at time.Time) {
	if s.Tokens == nil {
		s.Tokens = make(map[string]bool)
	}
	if s.TradeCount == 0 || at.Before(s.FirstSeen) {
		if s.FirstSeen.IsZero() || at.Before(s.FirstSeen) {
			s.FirstSeen = at
		}
	}
	s.TradeCount++
	s.TotalUSD = s.TotalUSD.Add(usd)
	if token != "" {
		s.Tokens[token] = true
	}
	if at.After(s.LastSeen) {
		s.LastSeen = at
	}
	s.recompute()
}

func (s *WhaleStats) recompute() {
	s.IsProven = s.TradeCount >= 5 && s.TotalUSD.GreaterThanOrEqual(decimal.NewFromInt(250_000))

	score := 0.5
	if s.TradeCount >= 20 {
		score += 0.2
	}
	if s.TotalUSD.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)) {
		score += 0.2
	}
	if len(s.Tokens) >= 10 {
		score += 0.1
	}
	s.SmartMoneyScore = score
}
