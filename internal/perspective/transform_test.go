package perspective

import (
	"testing"

	"github.com/rawblock/whale-classifier/internal/models"
)

func TestTransformCEXToEOAIsBuy(t *testing.T) {
	tr := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{FromAddr: "0xcex", ToAddr: "0xeoa"},
		FromLabel:   &models.AddressLabel{Kind: models.KindCEX},
		ToLabel:     &models.AddressLabel{Kind: models.KindEOA},
	}
	v := Transform(tr, models.ClassBuy)

	if v.Skip {
		t.Fatalf("unexpected skip")
	}
	if v.WhaleAddress != "0xeoa" || v.CounterpartyAddr != "0xcex" {
		t.Fatalf("whale/counterparty mismatch: %+v", v)
	}
	if v.Direction != models.DirBuy || !v.IsCEXTransaction {
		t.Fatalf("expected BUY/is_cex_transaction, got %+v", v)
	}
}

func TestTransformEOAToCEXIsSell(t *testing.T) {
	tr := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{FromAddr: "0xeoa", ToAddr: "0xcex"},
		FromLabel:   &models.AddressLabel{Kind: models.KindEOA},
		ToLabel:     &models.AddressLabel{Kind: models.KindCEX},
	}
	v := Transform(tr, models.ClassSell)

	if v.WhaleAddress != "0xeoa" || v.Direction != models.DirSell || !v.IsCEXTransaction {
		t.Fatalf("expected SELL/is_cex_transaction for whale=from, got %+v", v)
	}
}

func TestTransformCEXToCEXSkips(t *testing.T) {
	tr := models.EnrichedTransfer{
		FromLabel: &models.AddressLabel{Kind: models.KindCEX},
		ToLabel:   &models.AddressLabel{Kind: models.KindCEX},
	}
	v := Transform(tr, models.ClassTransfer)

	if !v.Skip {
		t.Fatalf("expected skip for CEX-CEX")
	}
}

func TestTransformEOAToEOADefaultsWhaleToFrom(t *testing.T) {
	tr := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{FromAddr: "0xa", ToAddr: "0xb"},
		FromLabel:   &models.AddressLabel{Kind: models.KindEOA},
		ToLabel:     &models.AddressLabel{Kind: models.KindEOA},
	}
	v := Transform(tr, models.ClassTransfer)

	if v.WhaleAddress != "0xa" || v.CounterpartyAddr != "0xb" {
		t.Fatalf("expected whale=from by default, got %+v", v)
	}
	if v.IsCEXTransaction {
		t.Fatalf("EOA counterparty must not be flagged as CEX")
	}
}

// A CEX on one side and a non-EOA, non-DEX counterparty (e.g. a bridge
// contract) on the other must still pick the non-CEX side as the whale:
// property 4 requires label(whale_address).kind != CEX for every stored
// record, and this pair falls through both explicit CEX rows (those only
// match an EOA-like counterparty).
func TestTransformCEXToBridgeNeverMakesCEXTheWhale(t *testing.T) {
	tr := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{FromAddr: "0xcex", ToAddr: "0xbridge"},
		FromLabel:   &models.AddressLabel{Kind: models.KindCEX},
		ToLabel:     &models.AddressLabel{Kind: models.KindBridge},
	}
	v := Transform(tr, models.ClassBridge)

	if v.Skip {
		t.Fatalf("unexpected skip")
	}
	if v.WhaleAddress != "0xbridge" || v.CounterpartyAddr != "0xcex" {
		t.Fatalf("expected whale=to (non-CEX side), got %+v", v)
	}
	if !v.IsCEXTransaction {
		t.Fatalf("expected is_cex_transaction=true since one side is a CEX")
	}
}

func TestTransformMixerToCEXNeverMakesCEXTheWhale(t *testing.T) {
	tr := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{FromAddr: "0xmixer", ToAddr: "0xcex"},
		FromLabel:   &models.AddressLabel{Kind: models.KindMixer},
		ToLabel:     &models.AddressLabel{Kind: models.KindCEX},
	}
	v := Transform(tr, models.ClassTransfer)

	if v.WhaleAddress != "0xmixer" || v.CounterpartyAddr != "0xcex" {
		t.Fatalf("expected whale=from (non-CEX side), got %+v", v)
	}
	if !v.IsCEXTransaction {
		t.Fatalf("expected is_cex_transaction=true since one side is a CEX")
	}
}

func TestTransformDEXToEOAIsBuyOnlyWhenClassifiedBuy(t *testing.T) {
	tr := models.EnrichedTransfer{
		RawTransfer: models.RawTransfer{FromAddr: "0xdex", ToAddr: "0xeoa"},
		FromLabel:   &models.AddressLabel{Kind: models.KindDEX},
		ToLabel:     &models.AddressLabel{Kind: models.KindEOA},
	}

	if v := Transform(tr, models.ClassBuy); v.Direction != models.DirBuy {
		t.Fatalf("expected BUY direction when classification agrees, got %+v", v)
	}
	if v := Transform(tr, models.ClassDefi); v.Direction != models.DirOther {
		t.Fatalf("expected DirOther when classification disagrees, got %+v", v)
	}
}
