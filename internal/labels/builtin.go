package labels

import (
	"strings"

	"github.com/rawblock/whale-classifier/internal/models"
)

// builtinEntry is a static, embedded registry entry, seeded at startup and
// overlayable by the persistent label store (exact entity match wins over
// category heuristics). Addresses are real Binance hot/cold and Coinbase
// Ethereum wallets.
type builtinEntry struct {
	kind       models.EntityKind
	entityName string
}

var builtinAddresses = map[string]builtinEntry{
	"0x28c6c06298d514db089934071355e5743bf21d60": {models.KindCEX, "Binance"},
	"0x21a31ee1afc51d94c2efccaa2092ad1028285549": {models.KindCEX, "Binance"},
	"0x71660c4005ba85c37ccec55d0c4493e66fe775d3": {models.KindCEX, "Coinbase"},
}

// dexKeywords is the "router/swap" keyword tier:
// confidence 0.80 on a keyword match against an otherwise untagged address
// label string fetched from the persistent store or a remote explorer.
var dexKeywords = []string{"router", "swap", "aggregator", "uniswap", "sushiswap", "1inch", "curve"}
var bridgeKeywords = []string{"bridge", "portal", "wormhole"}
var lendingKeywords = []string{"lending", "aave", "compound", "comptroller"}
var stakingKeywords = []string{"staking", "stake", "lido", "rocketpool"}
var yieldKeywords = []string{"yield", "vault", "yearn"}
var mevKeywords = []string{"mev", "flashbot", "sandwich"}

// classifyByKeyword runs the prioritized pattern list: DEX suffixes,
// bridge, lending, staking, yield, MEV. The first match wins; confidence
// 0.80 for a keyword match. CEX names are not matched by keyword; CEX
// labels come only from the built-in table and the label stores.
func classifyByKeyword(rawLabel string) (models.EntityKind, float64, bool) {
	lower := strings.ToLower(rawLabel)
	switch {
	case containsAny(lower, dexKeywords):
		return models.KindDEX, 0.80, true
	case containsAny(lower, bridgeKeywords):
		return models.KindBridge, 0.80, true
	case containsAny(lower, lendingKeywords):
		return models.KindLending, 0.80, true
	case containsAny(lower, stakingKeywords):
		return models.KindStaking, 0.80, true
	case containsAny(lower, yieldKeywords):
		return models.KindYield, 0.80, true
	case containsAny(lower, mevKeywords):
		return models.KindMEV, 0.80, true
	}
	return models.KindUnknown, 0, false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// lookupBuiltin returns the exact-entity-match tier (confidence 0.95).
func lookupBuiltin(addr string) (builtinEntry, bool) {
	e, ok := builtinAddresses[strings.ToLower(addr)]
	return e, ok
}
