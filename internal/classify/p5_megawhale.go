package classify

import (
	"context"

	"github.com/rawblock/whale-classifier/internal/models"
)

// P5MegaWhale adds a small pro-direction signal when the analytical
// backend (opt-in) tags an address as a historical mega-whale. Weight
// fixed at 0.35 per spec.md §9's resolved open question.
type P5MegaWhale struct{}

func (P5MegaWhale) Name() string    { return "P5_MegaWhale" }
func (P5MegaWhale) Weight() float64 { return 0.35 }

func (P5MegaWhale) Run(ctx context.Context, t models.EnrichedTransfer, facts *SwapFacts, deps Deps) models.PhaseResult {
	if deps.MegaWhale == nil {
		return models.PhaseResult{Phase: "P5_MegaWhale", Abstained: true}
	}

	candidate := t.FromAddr
	dir := models.DirBuy
	if t.ToLabel != nil && t.ToLabel.Kind != models.KindCEX {
		candidate = t.ToAddr
	}

	if !deps.MegaWhale.IsMegaWhale(candidate) {
		return models.PhaseResult{Phase: "P5_MegaWhale", Abstained: true}
	}

	return models.PhaseResult{Phase: "P5_MegaWhale", Dir: dir, Confidence: 0.55, Weight: 0.35,
		Evidence: []string{"historical mega-whale signal"}}
}
