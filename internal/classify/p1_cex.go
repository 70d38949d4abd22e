package classify

import (
	"context"

	"github.com/rawblock/whale-classifier/internal/models"
)

// P1CEX matches from_addr/to_addr against known CEX hot-wallet labels.
type P1CEX struct{}

func (P1CEX) Name() string    { return "P1_CEX" }
func (P1CEX) Weight() float64 { return 0.65 }

func isDirectionlessEOA(kind models.EntityKind) bool {
	return kind == models.KindEOA || kind == models.KindUnknown
}

func (P1CEX) Run(ctx context.Context, t models.EnrichedTransfer, facts *SwapFacts, deps Deps) models.PhaseResult {
	fromKind, toKind := models.KindUnknown, models.KindUnknown
	fromEntity, toEntity := "", ""
	if t.FromLabel != nil {
		fromKind = t.FromLabel.Kind
		fromEntity = t.FromLabel.EntityName
	}
	if t.ToLabel != nil {
		toKind = t.ToLabel.Kind
		toEntity = t.ToLabel.EntityName
	}

	switch {
	case fromKind == models.KindCEX && toKind == models.KindCEX:
		if fromEntity != "" && fromEntity == toEntity {
			return models.PhaseResult{Phase: "P1_CEX", ForceSkip: true,
				Evidence: []string{"CEX-internal transfer within " + fromEntity}}
		}
		return models.PhaseResult{Phase: "P1_CEX", Dir: models.DirOther, Kind: models.ClassTransfer,
			Confidence: 0.90, Weight: 0.65,
			Evidence: []string{"internal transfer between distinct CEX entities"}}

	case toKind == models.KindCEX && isDirectionlessEOA(fromKind):
		name := toEntity
		if name == "" {
			name = "known exchange"
		}
		return models.PhaseResult{Phase: "P1_CEX", Dir: models.DirSell, Confidence: 0.90, Weight: 0.65,
			Evidence: []string{"CEX deposit to " + name}}

	case fromKind == models.KindCEX && isDirectionlessEOA(toKind):
		name := fromEntity
		if name == "" {
			name = "known exchange"
		}
		return models.PhaseResult{Phase: "P1_CEX", Dir: models.DirBuy, Confidence: 0.90, Weight: 0.65,
			Evidence: []string{"CEX withdrawal from " + name}}
	}

	return models.PhaseResult{Phase: "P1_CEX", Abstained: true}
}
