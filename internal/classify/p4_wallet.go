package classify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

// P4Wallet never votes a direction itself; it produces behavioral boost
// evidence the aggregator folds into the leading signal (gas urgency,
// wallet history, USD size, peak-hour trading).
type P4Wallet struct{}

func (P4Wallet) Name() string    { return "P4_Wallet" }
func (P4Wallet) Weight() float64 { return 0.45 }

// Boost computes the additive confidence boost and its evidence lines for
// one enriched transfer, given the whale address the perspective transform
// already resolved.
func (P4Wallet) Boost(ctx context.Context, t models.EnrichedTransfer, whaleAddress string, deps Deps) (float64, []string) {
	var boost float64
	var evidence []string

	hundredK := decimal.NewFromInt(100_000)
	if t.USDValue.GreaterThanOrEqual(hundredK) {
		boost += 0.15
		evidence = append(evidence, "usd_value >= $100k boost")
	}

	switch {
	case t.GasPriceGwei >= 100:
		boost += 0.10
		evidence = append(evidence, "gas urgency: >=100 gwei")
	case t.GasPriceGwei >= 50:
		boost += 0.05
		evidence = append(evidence, "gas urgency: >=50 gwei")
	}

	if deps.Registry != nil && whaleAddress != "" {
		if stats, ok := deps.Registry.Lookup(whaleAddress); ok {
			if stats.IsProven {
				boost += 0.15
				evidence = append(evidence, "proven whale registry boost")
			} else if stats.TradeCount >= 10 && time.Since(stats.FirstSeen) < 30*24*time.Hour {
				boost += 0.08
				evidence = append(evidence, "active wallet registry boost")
			}
		}
	}

	hour := t.BlockTime.UTC().Hour()
	if deps.Now != nil {
		hour = deps.Now()
	}
	if hour >= 13 && hour <= 21 {
		boost += 0.04
		evidence = append(evidence, "peak-hour trading boost")
	}

	return boost, evidence
}

func (P4Wallet) Run(ctx context.Context, t models.EnrichedTransfer, facts *SwapFacts, deps Deps) models.PhaseResult {
	return models.PhaseResult{Phase: "P4_Wallet", Abstained: true}
}
