package classify

import (
	"context"
	"log"

	"github.com/rawblock/whale-classifier/internal/models"
)

// decodeReceipt runs P3 (blockchain-specific receipt parsing): it produces
// the SwapFacts P2 consumes rather than voting on a direction itself, so it
// has no Phase.Run of its own — the engine invokes it once per event ahead
// of P2. Abstains (returns nil) on any decoder error, missing decoder, or a
// failed transaction.
func decodeReceipt(ctx context.Context, t models.EnrichedTransfer, deps Deps) *SwapFacts {
	if deps.ReceiptDecoder == nil {
		return nil
	}
	facts, err := deps.ReceiptDecoder.Decode(ctx, t.Chain, t.TxHash)
	if err != nil {
		log.Printf("[Classify] P3 receipt decode abstained for %s: %v", t.TxHash, err)
		return nil
	}
	if facts == nil || !facts.Success {
		return nil
	}
	return facts
}
