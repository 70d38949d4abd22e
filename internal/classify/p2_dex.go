package classify

import (
	"context"

	"github.com/rawblock/whale-classifier/internal/models"
)

// P2DEX matches known routers/aggregators and decodes router intent. Per
// spec.md §4.4, token-to-router direction alone is insufficient — this
// phase only classifies when SwapFacts were actually decoded by P3.
type P2DEX struct{}

func (P2DEX) Name() string    { return "P2_DEX" }
func (P2DEX) Weight() float64 { return 0.60 }

func (P2DEX) Run(ctx context.Context, t models.EnrichedTransfer, facts *SwapFacts, deps Deps) models.PhaseResult {
	fromKind, toKind := models.KindUnknown, models.KindUnknown
	if t.FromLabel != nil {
		fromKind = t.FromLabel.Kind
	}
	if t.ToLabel != nil {
		toKind = t.ToLabel.Kind
	}

	if fromKind != models.KindDEX && toKind != models.KindDEX {
		return models.PhaseResult{Phase: "P2_DEX", Abstained: true}
	}

	if facts == nil {
		// Abstain unless decoded — spec.md §9's resolved open question.
		return models.PhaseResult{Phase: "P2_DEX", Abstained: true}
	}

	switch facts.Method {
	case "addLiquidity", "removeLiquidity":
		return models.PhaseResult{Phase: "P2_DEX", Kind: models.ClassLiquidity, Confidence: 0.75, Weight: 0.60,
			Evidence: []string{"decoded " + facts.Method + " on DEX router"}}

	case "stake":
		return models.PhaseResult{Phase: "P2_DEX", Kind: models.ClassStaking, Confidence: 0.75, Weight: 0.60,
			Evidence: []string{"decoded stake deposit"}}

	case "unstake":
		return models.PhaseResult{Phase: "P2_DEX", Dir: models.DirSell, Kind: models.ClassTransfer, Confidence: 0.55, Weight: 0.60,
			Evidence: []string{"decoded unstake withdrawal (sell-side transfer, not SELL)"}}

	case "bridgeDeposit":
		if !deps.BridgeDirectionHeuristic {
			return models.PhaseResult{Phase: "P2_DEX", Abstained: true}
		}
		if facts.BridgeL1ToL2 {
			return models.PhaseResult{Phase: "P2_DEX", Dir: models.DirBuy, Confidence: 0.70, Weight: 0.60,
				Evidence: []string{"bridge deposit L1->L2 (accumulation)"}}
		}
		return models.PhaseResult{Phase: "P2_DEX", Dir: models.DirSell, Confidence: 0.65, Weight: 0.60,
			Evidence: []string{"bridge deposit L2->L1 (exit)"}}

	case "swap":
		if !facts.Decoded || facts.TokenIn == "" || facts.TokenOut == "" {
			return models.PhaseResult{Phase: "P2_DEX", Abstained: true}
		}
		switch {
		case facts.IsStableIn && !facts.IsStableOut:
			return models.PhaseResult{Phase: "P2_DEX", Dir: models.DirBuy, Confidence: 0.70, Weight: 0.60,
				Evidence: []string{"decoded swap: stable in, non-stable out"}}
		case !facts.IsStableIn && facts.IsStableOut:
			return models.PhaseResult{Phase: "P2_DEX", Dir: models.DirSell, Confidence: 0.70, Weight: 0.60,
				Evidence: []string{"decoded swap: non-stable in, stable out"}}
		case facts.LowCapInbound:
			return models.PhaseResult{Phase: "P2_DEX", Dir: models.DirBuy, Confidence: 0.55, Weight: 0.60,
				Evidence: []string{"crypto-crypto swap, low-cap heuristic asserts inbound accumulation"}}
		default:
			return models.PhaseResult{Phase: "P2_DEX", Kind: models.ClassDefi, Confidence: 0.60, Weight: 0.60,
				Evidence: []string{"crypto-crypto swap, no direction heuristic"}}
		}
	}

	return models.PhaseResult{Phase: "P2_DEX", Abstained: true}
}
