package classify

import (
	"context"
	"time"

	"github.com/rawblock/whale-classifier/internal/models"
)

// phaseDeadline bounds a single phase's Run call; spec.md §5 budgets 8s
// total per phase per event, which this also covers since no phase in this
// engine performs its own network I/O beyond what Deps already resolved.
const phaseDeadline = 8 * time.Second

// Engine runs the fixed phase order (P3 decode, then P1/P2/P5 voting)
// and folds the results through the master aggregator, which applies the
// P4 wallet boost.
type Engine struct {
	p1 P1CEX
	p2 P2DEX
	p4 P4Wallet
	p5 P5MegaWhale
	th Thresholds
}

// NewEngine builds an Engine with the default aggregation thresholds.
func NewEngine() *Engine {
	return &Engine{th: DefaultThresholds()}
}

// Classify runs every phase against one enriched (and, by this point,
// whale-perspective-resolved) transfer and returns the aggregated
// Classification. whaleAddress must be the perspective transform's
// resolved whale side, used for the P4 registry lookup.
func (e *Engine) Classify(ctx context.Context, t models.EnrichedTransfer, whaleAddress string, deps Deps) models.Classification {
	facts := decodeReceipt(ctx, t, deps)

	results := make([]models.PhaseResult, 0, 4)
	for _, run := range []func() models.PhaseResult{
		func() models.PhaseResult { return e.runPhase(ctx, e.p1, t, facts, deps) },
		func() models.PhaseResult { return e.runPhase(ctx, e.p2, t, facts, deps) },
		func() models.PhaseResult { return e.runPhase(ctx, e.p5, t, facts, deps) },
	} {
		r := run()
		results = append(results, r)
		if r.ForceSkip {
			return models.Classification{Skip: true, Evidence: r.Evidence}
		}
		if e.earlyExit(r) {
			break
		}
	}

	return Aggregate(ctx, results, e.p4, t, whaleAddress, deps, e.th)
}

// earlyExit implements spec.md §4.4's per-phase early-exit: a CEX vote at
// >=0.75 or a DEX/protocol vote at >=0.70 short-circuits the remaining
// voting phases, P5 included (the P4 boost still applies via Aggregate).
func (e *Engine) earlyExit(r models.PhaseResult) bool {
	if r.Abstained {
		return false
	}
	switch r.Phase {
	case "P1_CEX":
		return r.Confidence >= 0.75
	case "P2_DEX":
		return r.Confidence >= 0.70
	default:
		return false
	}
}

func (e *Engine) runPhase(ctx context.Context, p Phase, t models.EnrichedTransfer, facts *SwapFacts, deps Deps) models.PhaseResult {
	pctx, cancel := context.WithTimeout(ctx, phaseDeadline)
	defer cancel()
	return p.Run(pctx, t, facts, deps)
}
