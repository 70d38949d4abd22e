// Package perspective implements C5: collapsing a (from, to) labeled
// transfer into the whale's point of view — which side is the whale, who
// the counterparty is, and what direction the trade represents from the
// whale's perspective.
package perspective

import "github.com/rawblock/whale-classifier/internal/models"

// View is the whale-perspective projection of an EnrichedTransfer, per the
// from.kind/to.kind table.
type View struct {
	WhaleAddress     string
	CounterpartyAddr string
	CounterpartyKind models.EntityKind
	IsCEXTransaction bool
	Direction        models.Direction
	Skip             bool
}

func isEOAlike(kind models.EntityKind) bool {
	return kind == models.KindEOA || kind == models.KindUnknown
}

// Transform applies the table in spec.md §4.5. classifiedKind is the
// aggregator's output, consulted for the DEX rows where direction only
// follows when the classification itself agreed.
func Transform(t models.EnrichedTransfer, classifiedKind models.ClassificationKind) View {
	fromKind, toKind := models.KindUnknown, models.KindUnknown
	if t.FromLabel != nil {
		fromKind = t.FromLabel.Kind
	}
	if t.ToLabel != nil {
		toKind = t.ToLabel.Kind
	}

	switch {
	case fromKind == models.KindCEX && toKind == models.KindCEX:
		return View{Skip: true}

	case fromKind == models.KindCEX && isEOAlike(toKind):
		return View{
			WhaleAddress:     t.ToAddr,
			CounterpartyAddr: t.FromAddr,
			CounterpartyKind: fromKind,
			IsCEXTransaction: true,
			Direction:        models.DirBuy,
		}

	case isEOAlike(fromKind) && toKind == models.KindCEX:
		return View{
			WhaleAddress:     t.FromAddr,
			CounterpartyAddr: t.ToAddr,
			CounterpartyKind: toKind,
			IsCEXTransaction: true,
			Direction:        models.DirSell,
		}

	case fromKind == models.KindDEX && isEOAlike(toKind):
		dir := models.DirOther
		if classifiedKind == models.ClassBuy || classifiedKind == models.ClassModerateBuy {
			dir = models.DirBuy
		}
		return View{
			WhaleAddress:     t.ToAddr,
			CounterpartyAddr: t.FromAddr,
			CounterpartyKind: fromKind,
			IsCEXTransaction: false,
			Direction:        dir,
		}

	case isEOAlike(fromKind) && toKind == models.KindDEX:
		dir := models.DirOther
		if classifiedKind == models.ClassSell || classifiedKind == models.ClassModerateSell {
			dir = models.DirSell
		}
		return View{
			WhaleAddress:     t.FromAddr,
			CounterpartyAddr: t.ToAddr,
			CounterpartyKind: toKind,
			IsCEXTransaction: false,
			Direction:        dir,
		}

	case fromKind == models.KindEOA && toKind == models.KindEOA:
		return View{
			WhaleAddress:     t.FromAddr,
			CounterpartyAddr: t.ToAddr,
			CounterpartyKind: toKind,
			IsCEXTransaction: false,
			Direction:        models.DirOther,
		}

	case fromKind == models.KindCEX:
		// A CEX on one side and a non-EOA counterparty (DEX, BRIDGE,
		// LENDING, MIXER, ...) on the other: the CEX is never the whale,
		// mirroring the explicit CEX/EOA row above.
		return View{
			WhaleAddress:     t.ToAddr,
			CounterpartyAddr: t.FromAddr,
			CounterpartyKind: fromKind,
			IsCEXTransaction: true,
			Direction:        models.DirOther,
		}

	case toKind == models.KindCEX:
		return View{
			WhaleAddress:     t.FromAddr,
			CounterpartyAddr: t.ToAddr,
			CounterpartyKind: toKind,
			IsCEXTransaction: true,
			Direction:        models.DirOther,
		}

	default:
		// Unknown/mixed combinations (e.g. BRIDGE, LENDING, MIXER
		// counterparties, neither side a CEX) default to the from-side as
		// the whale, same as the EOA/EOA fallback row.
		return View{
			WhaleAddress:     t.FromAddr,
			CounterpartyAddr: t.ToAddr,
			CounterpartyKind: toKind,
			IsCEXTransaction: false,
			Direction:        models.DirOther,
		}
	}
}
