package classify

import (
	"context"
	"math"

	"github.com/rawblock/whale-classifier/internal/models"
)

// Thresholds configures the aggregator's output-kind boundaries, tunable
// per spec.md §4.4.
type Thresholds struct {
	High      float64 // 0.80
	Medium    float64 // 0.60
	EarlyExit float64 // 0.85
}

// DefaultThresholds matches spec.md §4.4's master aggregation bands.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.80, Medium: 0.60, EarlyExit: 0.85}
}

// contribution is one phase's vote for a bucket: its own reported
// confidence plus the phase weight from the table in spec.md §4.4.
type contribution struct {
	weight     float64
	confidence float64
}

// stackConfidence implements the master aggregator's multiplicative
// confidence stacking:
//
//	C = 1 - Π(1 - w_p*c_p) * (1 + bonus)
//	bonus = (n-1)*0.08 for n>=2 votes, capped at 0.32
//
// A lone vote is reported at its own confidence, undiscounted by weight:
// weight is what lets several concurring phases reinforce each other: a
// single phase crossing its own early-exit bar (P1>=0.75, P2>=0.70) is
// already decisive on its own and must not be diluted by the stacking
// product, or "early exit" would stop other phases and then still report a
// weaker number than the phase itself claimed.
func stackConfidence(contributions []contribution) float64 {
	if len(contributions) == 0 {
		return 0
	}
	if len(contributions) == 1 {
		return contributions[0].confidence
	}
	product := 1.0
	best := 0.0
	for _, c := range contributions {
		product *= 1 - c.weight*c.confidence
		if c.confidence > best {
			best = c.confidence
		}
	}
	bonus := math.Min(0.32, float64(len(contributions)-1)*0.08)
	c := 1 - product*(1+bonus)
	if c < best {
		// A weighted product can come in under its single strongest
		// contributor when the other votes carry low weight or
		// confidence; adding a concordant phase must never make the
		// aggregate worse than what was already on the table.
		c = best
	}
	if c < 0 {
		c = 0
	} else if c > 1 {
		c = 1
	}
	return c
}

// vote bucket keyed by either a direction (BUY/SELL) or a non-directional
// kind (STAKING, LIQUIDITY, DEFI, ...) — the argmax runs over both kinds of
// bucket uniformly.
type vote struct {
	kind         models.ClassificationKind
	dir          models.Direction
	contributors []contribution
	evidence     []string
}

// Aggregate combines non-abstained phase votes into a single Classification.
// whaleAddress is the perspective-resolved whale side of the transfer, used
// only to fetch the P4 behavioral boost and registry lookup.
func Aggregate(ctx context.Context, results []models.PhaseResult, p4 P4Wallet, t models.EnrichedTransfer, whaleAddress string, deps Deps, th Thresholds) models.Classification {
	for _, r := range results {
		if r.ForceSkip {
			return models.Classification{Skip: true, Evidence: r.Evidence}
		}
	}

	votes := map[string]*vote{}
	order := []string{}
	var tags []string

	for _, r := range results {
		if r.Abstained {
			continue
		}
		tags = append(tags, r.Tags...)

		var key string
		var kind models.ClassificationKind
		switch {
		case r.Kind != "":
			key, kind = "kind:"+string(r.Kind), r.Kind
		case r.Dir == models.DirBuy:
			key, kind = string(models.DirBuy), models.ClassBuy
		case r.Dir == models.DirSell:
			key, kind = string(models.DirSell), models.ClassSell
		default:
			continue // DirOther without an explicit Kind carries no aggregable signal
		}

		v, ok := votes[key]
		if !ok {
			v = &vote{kind: kind, dir: r.Dir}
			votes[key] = v
			order = append(order, key)
		}
		v.contributors = append(v.contributors, contribution{weight: r.Weight, confidence: r.Confidence})
		v.evidence = append(v.evidence, r.Evidence...)
	}

	if len(votes) == 0 {
		return models.Classification{Kind: models.ClassTransfer, Evidence: []string{"no phase produced a signal"}}
	}

	var winner *vote
	bestConfidence := -1.0
	for _, key := range order {
		v := votes[key]
		c := stackConfidence(v.contributors)
		if c > bestConfidence {
			bestConfidence, winner = c, v
		}
	}

	confidence := bestConfidence
	evidence := append([]string{}, winner.evidence...)

	if winner.dir == models.DirBuy || winner.dir == models.DirSell {
		boost, boostEvidence := p4.Boost(ctx, t, whaleAddress, deps)
		confidence = math.Min(1, confidence+boost)
		evidence = append(evidence, boostEvidence...)
	}

	final := models.Classification{Confidence: confidence, Evidence: evidence, ShouldAlert: true}
	for _, tag := range tags {
		final.AddTag(tag)
	}
	if final.HasTag("scam_token") || final.HasTag("low_liquidity") {
		final.ShouldAlert = false
	}

	if winner.kind == models.ClassBuy || winner.kind == models.ClassSell {
		final.Kind = mapDirectionalKind(winner.dir, confidence, th)
	} else {
		final.Kind = winner.kind
	}

	return final
}

func mapDirectionalKind(dir models.Direction, confidence float64, th Thresholds) models.ClassificationKind {
	switch {
	case confidence >= th.High:
		if dir == models.DirBuy {
			return models.ClassBuy
		}
		return models.ClassSell
	case confidence >= th.Medium:
		if dir == models.DirBuy {
			return models.ClassModerateBuy
		}
		return models.ClassModerateSell
	default:
		return models.ClassTransfer
	}
}
