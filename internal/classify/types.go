// Package classify implements C4, the multi-phase classification engine.
// Each phase inspects an EnrichedTransfer and votes (kind, confidence,
// evidence, tags) or abstains; a master aggregator combines phase outputs
// via multiplicative confidence stacking.
package classify

import (
	"context"

	"github.com/rawblock/whale-classifier/internal/models"
)

// Phase is one stage of the classification pipeline.
type Phase interface {
	Name() string
	Weight() float64
	Run(ctx context.Context, t models.EnrichedTransfer, facts *SwapFacts, deps Deps) models.PhaseResult
}

// SwapFacts is what P3 (blockchain-specific log/receipt decoding) extracts
// and P2 (DEX/protocol intent) consumes. Nil when the receipt is
// unavailable, decoding failed, or the transaction reverted — P2 must then
// abstain rather than guess direction from router topology alone.
type SwapFacts struct {
	Decoded          bool
	Success          bool
	TokenIn          string
	TokenOut         string
	AmountIn         float64
	AmountOut        float64
	Method           string // "swap" | "addLiquidity" | "removeLiquidity" | "stake" | "unstake" | "bridgeDeposit" | "bridgeWithdraw"
	BridgeL1ToL2     bool
	IsStableIn       bool
	IsStableOut      bool
	LowCapInbound    bool
}

// WhaleLookup is the C8 read contract P4 consults for registry boosts.
type WhaleLookup interface {
	Lookup(whaleAddress string) (models.WhaleStats, bool)
}

// MegaWhaleSignal is the opt-in analytical-backend collaborator for P5.
type MegaWhaleSignal interface {
	IsMegaWhale(address string) bool
}

// ReceiptDecoder is what P3 consults to parse the transaction receipt into
// SwapFacts. Must be idempotent and safe to re-run; abstains (returns nil)
// when the receipt is unavailable or the transaction reverted.
type ReceiptDecoder interface {
	Decode(ctx context.Context, chain models.Chain, txHash string) (*SwapFacts, error)
}

// Deps bundles the read-only collaborators phases consult. Built once at
// pipeline construction and shared (read-only) across classification
// workers.
type Deps struct {
	Registry                WhaleLookup
	MegaWhale                MegaWhaleSignal
	ReceiptDecoder           ReceiptDecoder
	BridgeDirectionHeuristic bool
	Now                      func() int // hour-of-day UTC, injectable for tests
}
