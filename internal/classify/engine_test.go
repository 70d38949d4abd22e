package classify

import (
	"context"
	"testing"

	"github.com/rawblock/whale-classifier/internal/models"
)

// S1: CEX withdrawal from a known hot wallet to an EOA should classify BUY
// at ~0.90 confidence and early-exit before P2/P5 run.
func TestEngineClassifyCEXWithdrawalIsBuy(t *testing.T) {
	transfer := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{
			FromAddr:     "0x28c6c06298d514db089934071355e5743bf21d60",
			ToAddr:       "0xabc0000000000000000000000000000000abc1",
			GasPriceGwei: 20,
		},
		FromLabel: &models.AddressLabel{Kind: models.KindCEX, EntityName: "Binance"},
		ToLabel:   &models.AddressLabel{Kind: models.KindEOA},
	}

	e := NewEngine()
	got := e.Classify(context.Background(), transfer, transfer.ToAddr, Deps{})

	if got.Kind != models.ClassBuy {
		t.Fatalf("kind = %s, want BUY", got.Kind)
	}
	if got.Confidence < 0.85 {
		t.Fatalf("confidence = %.4f, want ~0.90", got.Confidence)
	}
}

// S2: deposit to a CEX with high gas should classify SELL with the gas
// urgency boost applied (0.90 base + 0.10 at >=100 gwei, capped at 1.0).
func TestEngineClassifyCEXDepositWithGasBoostIsSell(t *testing.T) {
	transfer := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{
			FromAddr:     "0xdef0000000000000000000000000000000def1",
			ToAddr:       "0x71660c4005ba85c37ccec55d0c4493e66fe775d3",
			GasPriceGwei: 120,
		},
		FromLabel: &models.AddressLabel{Kind: models.KindEOA},
		ToLabel:   &models.AddressLabel{Kind: models.KindCEX, EntityName: "Coinbase"},
	}

	e := NewEngine()
	got := e.Classify(context.Background(), transfer, transfer.FromAddr, Deps{})

	if got.Kind != models.ClassSell {
		t.Fatalf("kind = %s, want SELL", got.Kind)
	}
	if got.Confidence < 0.94 {
		t.Fatalf("confidence = %.4f, want >=0.95ish", got.Confidence)
	}
}

// S3: internal CEX move between distinct entities is a plain TRANSFER; same
// entity must force a skip.
func TestEngineClassifyInternalCEXSameEntitySkips(t *testing.T) {
	transfer := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{
			FromAddr: "0x28c6c06298d514db089934071355e5743bf21d60",
			ToAddr:   "0x21a31ee1afc51d94c2efccaa2092ad1028285549",
		},
		FromLabel: &models.AddressLabel{Kind: models.KindCEX, EntityName: "Binance"},
		ToLabel:   &models.AddressLabel{Kind: models.KindCEX, EntityName: "Binance"},
	}

	e := NewEngine()
	got := e.Classify(context.Background(), transfer, "", Deps{})

	if !got.Skip {
		t.Fatalf("expected Skip=true for same-entity CEX move")
	}
}

func TestEngineClassifyInternalCEXDistinctEntitiesIsTransfer(t *testing.T) {
	transfer := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{
			FromAddr: "0x28c6c06298d514db089934071355e5743bf21d60",
			ToAddr:   "0x21a31ee1afc51d94c2efccaa2092ad1028285549",
		},
		FromLabel: &models.AddressLabel{Kind: models.KindCEX, EntityName: "Binance"},
		ToLabel:   &models.AddressLabel{Kind: models.KindCEX, EntityName: "Kraken"},
	}

	e := NewEngine()
	got := e.Classify(context.Background(), transfer, "", Deps{})

	if got.Skip {
		t.Fatalf("distinct-entity CEX move must not skip")
	}
	if got.Kind != models.ClassTransfer {
		t.Fatalf("kind = %s, want TRANSFER", got.Kind)
	}
}
