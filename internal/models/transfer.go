package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// RawTransfer is the canonical shape every ingestion source normalizes into.
// (chain, tx_hash, log_index) uniquely identifies a raw event across sources.
// Created by a source, consumed exactly once, never mutated after emission.
type RawTransfer struct {
	SourceID    string          `json:"source_id"`
	Chain       Chain           `json:"chain"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    *int            `json:"log_index,omitempty"`
	BlockTime   time.Time       `json:"block_time"`
	FromAddr    string          `json:"from_addr"`
	ToAddr      string          `json:"to_addr"`
	TokenAddr   string          `json:"token_addr,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Decimals    *int            `json:"decimals,omitempty"`
	NativeValue decimal.Decimal `json:"native_value,omitempty"`
	GasPriceGwei float64        `json:"gas_price_gwei,omitempty"`
}

// EnrichedTransfer is a RawTransfer plus label/price enrichment.
type EnrichedTransfer struct {
	RawTransfer

	USDValue     decimal.Decimal `json:"usd_value"`
	PriceMissing bool            `json:"price_missing,omitempty"`
	FromLabel    *AddressLabel   `json:"from_label,omitempty"`
	ToLabel      *AddressLabel   `json:"to_label,omitempty"`
	TokenAgeDays *int            `json:"token_age_days,omitempty"`
	TokenRisk    string          `json:"token_risk,omitempty"`
}

// Key identifies the raw event uniquely across sources.
func (r RawTransfer) Key() string {
	idx := -1
	if r.LogIndex != nil {
		idx = *r.LogIndex
	}
	return string(r.Chain) + ":" + r.TxHash + ":" + strconv.Itoa(idx)
}
