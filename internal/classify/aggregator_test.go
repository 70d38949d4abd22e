package classify

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// S6: two concordant SELL votes at w=0.65,c=0.50 and w=0.60,c=0.45 stack to
// ~0.47, below the 0.60 threshold, so TRANSFER with no boost.
func TestAggregateStackedSellBelowThreshold(t *testing.T) {
	results := []models.PhaseResult{
		{Phase: "P1_CEX", Dir: models.DirSell, Confidence: 0.50, Weight: 0.65},
		{Phase: "P2_DEX", Dir: models.DirSell, Confidence: 0.45, Weight: 0.60},
	}
	got := Aggregate(context.Background(), results, P4Wallet{}, models.EnrichedTransfer{}, "", Deps{}, DefaultThresholds())

	if !approxEqual(got.Confidence, 0.47, 0.01) {
		t.Fatalf("confidence = %.4f, want ~0.47", got.Confidence)
	}
	if got.Kind != models.ClassTransfer {
		t.Fatalf("kind = %s, want TRANSFER", got.Kind)
	}
}

// S6 continued: the same stacked SELL plus a $100k+ USD boost (+0.15)
// crosses into MODERATE_SELL territory (~0.62).
func TestAggregateStackedSellWithUSDBoostCrossesModerate(t *testing.T) {
	results := []models.PhaseResult{
		{Phase: "P1_CEX", Dir: models.DirSell, Confidence: 0.50, Weight: 0.65},
		{Phase: "P2_DEX", Dir: models.DirSell, Confidence: 0.45, Weight: 0.60},
	}
	transfer := models.EnrichedTransfer{}
	transfer.USDValue = decimal.NewFromInt(150_000)

	got := Aggregate(context.Background(), results, P4Wallet{}, transfer, "0xwhale", Deps{}, DefaultThresholds())

	if !approxEqual(got.Confidence, 0.62, 0.02) {
		t.Fatalf("confidence = %.4f, want ~0.62", got.Confidence)
	}
	if got.Kind != models.ClassModerateSell {
		t.Fatalf("kind = %s, want MODERATE_SELL", got.Kind)
	}
}

// S1: a single strong CEX withdrawal vote (0.90 confidence) clears the high
// threshold outright and maps straight to BUY.
func TestAggregateSingleStrongCEXVoteIsBuy(t *testing.T) {
	results := []models.PhaseResult{
		{Phase: "P1_CEX", Dir: models.DirBuy, Confidence: 0.90, Weight: 0.65, Evidence: []string{"CEX withdrawal from Binance"}},
	}
	got := Aggregate(context.Background(), results, P4Wallet{}, models.EnrichedTransfer{}, "", Deps{}, DefaultThresholds())

	if got.Kind != models.ClassBuy {
		t.Fatalf("kind = %s, want BUY", got.Kind)
	}
	if got.Confidence < 0.80 {
		t.Fatalf("confidence = %.4f, want >=0.80", got.Confidence)
	}
}

// S3: P1 signaling ForceSkip must short-circuit straight to Skip regardless
// of any other votes present.
func TestAggregateForceSkipWins(t *testing.T) {
	results := []models.PhaseResult{
		{Phase: "P1_CEX", ForceSkip: true, Evidence: []string{"CEX-internal transfer within Binance"}},
		{Phase: "P2_DEX", Dir: models.DirBuy, Confidence: 0.90, Weight: 0.60},
	}
	got := Aggregate(context.Background(), results, P4Wallet{}, models.EnrichedTransfer{}, "", Deps{}, DefaultThresholds())

	if !got.Skip {
		t.Fatalf("expected Skip=true")
	}
}

// A non-directional kind (e.g. LIQUIDITY from P2) must bypass threshold
// mapping and keep its phase-assigned kind untouched.
func TestAggregateNonDirectionalKindPassesThrough(t *testing.T) {
	results := []models.PhaseResult{
		{Phase: "P2_DEX", Kind: models.ClassLiquidity, Confidence: 0.75, Weight: 0.60},
	}
	got := Aggregate(context.Background(), results, P4Wallet{}, models.EnrichedTransfer{}, "", Deps{}, DefaultThresholds())

	if got.Kind != models.ClassLiquidity {
		t.Fatalf("kind = %s, want LIQUIDITY", got.Kind)
	}
}

// Monotonicity: adding a second concordant, positive-confidence phase must
// never lower the aggregated confidence below what the strongest phase
// already reported on its own (spec.md's testable property 6). A lone P2
// DEX vote at 0.55 must not drop once a weak-weight P5 MegaWhale vote
// agrees alongside it.
func TestAggregateAddingConcordantPhaseNeverLowersConfidence(t *testing.T) {
	solo := []models.PhaseResult{
		{Phase: "P2_DEX", Dir: models.DirBuy, Confidence: 0.55, Weight: 0.60},
	}
	soloGot := Aggregate(context.Background(), solo, P4Wallet{}, models.EnrichedTransfer{}, "", Deps{}, DefaultThresholds())

	withSecond := []models.PhaseResult{
		{Phase: "P2_DEX", Dir: models.DirBuy, Confidence: 0.55, Weight: 0.60},
		{Phase: "P5_MEGAWHALE", Dir: models.DirBuy, Confidence: 0.55, Weight: 0.35},
	}
	combinedGot := Aggregate(context.Background(), withSecond, P4Wallet{}, models.EnrichedTransfer{}, "", Deps{}, DefaultThresholds())

	if combinedGot.Confidence < soloGot.Confidence {
		t.Fatalf("adding a concordant phase lowered confidence: solo=%.4f combined=%.4f", soloGot.Confidence, combinedGot.Confidence)
	}
}

// scam_token tag must force should_alert=false without altering kind.
func TestAggregateScamTagSuppressesAlertOnly(t *testing.T) {
	results := []models.PhaseResult{
		{Phase: "P1_CEX", Dir: models.DirBuy, Confidence: 0.90, Weight: 0.65, Tags: []string{"scam_token"}},
	}
	got := Aggregate(context.Background(), results, P4Wallet{}, models.EnrichedTransfer{}, "", Deps{}, DefaultThresholds())

	if got.ShouldAlert {
		t.Fatalf("expected should_alert=false for scam_token")
	}
	if got.Kind != models.ClassBuy {
		t.Fatalf("kind = %s, want BUY unchanged", got.Kind)
	}
}
