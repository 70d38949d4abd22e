package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/classify"
	"github.com/rawblock/whale-classifier/internal/config"
	"github.com/rawblock/whale-classifier/internal/ingest"
	"github.com/rawblock/whale-classifier/internal/models"
	"github.com/rawblock/whale-classifier/internal/ops"
	"github.com/rawblock/whale-classifier/internal/price"
	"github.com/rawblock/whale-classifier/internal/registry"
	"github.com/rawblock/whale-classifier/internal/sink"
)

type fakeLabels struct {
	byAddr map[string]models.AddressLabel
}

func (f *fakeLabels) Lookup(_ context.Context, addr string, chain models.Chain) models.AddressLabel {
	if l, ok := f.byAddr[addr]; ok {
		return l
	}
	return models.UnknownLabel(addr, chain)
}

type memStore struct {
	upserted []models.WhaleRecord
}

func (m *memStore) Upsert(_ context.Context, rec models.WhaleRecord) error {
	m.upserted = append(m.upserted, rec)
	return nil
}

const binanceHot = "0x28c6c06298d514db089934071355e5743bf21d60"

func TestPipelineClassifiesStoresAndRegisters(t *testing.T) {
	cfg := config.Default()
	cfg.EnrichmentWorkers = 1
	cfg.ClassificationWorkers = 1
	cfg.SinkWorkers = 1
	cfg.DedupShards = 4

	fanin := ingest.NewFanIn(cfg.FanInQueueSize, false)
	labels := &fakeLabels{byAddr: map[string]models.AddressLabel{
		binanceHot: {Address: binanceHot, Kind: models.KindCEX, EntityName: "Binance", Confidence: 0.95},
	}}
	prices := price.NewResolver(2 * time.Minute)
	prices.Observe("WHL", decimal.NewFromInt(10), time.Now())

	reg := registry.New()
	store := &memStore{}
	sk := sink.NewSink(store, sink.NewDeadLetterQueue(10), sink.NewSentimentCounters(), nil)
	hub := ops.NewHub()
	go hub.Run()

	deps := classify.Deps{Registry: reg, Now: func() int { return 12 }}
	engine := classify.NewEngine()

	p := New(cfg, fanin, labels, prices, engine, deps, nil, reg, sk, hub)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	whale := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	raw := models.RawTransfer{
		SourceID:  "test",
		Chain:     models.ChainEthereum,
		TxHash:    "0xdeadbeef",
		BlockTime: time.Now(),
		FromAddr:  binanceHot,
		ToAddr:    whale,
		Symbol:    "WHL",
		Amount:    decimal.NewFromInt(10_000),
	}
	fanin.Emit(ctx, raw)

	deadline := time.After(2 * time.Second)
	for {
		if len(store.upserted) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for pipeline to store a record")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	rec := store.upserted[0]
	if rec.WhaleAddress != whale {
		t.Fatalf("expected whale address %s, got %s", whale, rec.WhaleAddress)
	}
	if rec.Classification != models.ClassBuy {
		t.Fatalf("expected a CEX withdrawal to classify as BUY, got %s", rec.Classification)
	}

	if _, ok := reg.Lookup(whale); !ok {
		t.Fatalf("expected registry to have observed the whale")
	}
}

// A near-duplicate that merges into an existing record must not also
// become its own persisted row or registry observation: the dedup shard
// has already folded it into the existing one.
func TestPipelineMergedDuplicateIsNotStoredAsANewRecord(t *testing.T) {
	cfg := config.Default()
	cfg.EnrichmentWorkers = 1
	cfg.ClassificationWorkers = 1
	cfg.SinkWorkers = 1
	cfg.DedupShards = 4

	fanin := ingest.NewFanIn(cfg.FanInQueueSize, false)
	labels := &fakeLabels{byAddr: map[string]models.AddressLabel{
		binanceHot: {Address: binanceHot, Kind: models.KindCEX, EntityName: "Binance", Confidence: 0.95},
	}}
	prices := price.NewResolver(2 * time.Minute)
	prices.Observe("WHL", decimal.NewFromInt(10), time.Now())

	reg := registry.New()
	store := &memStore{}
	sk := sink.NewSink(store, sink.NewDeadLetterQueue(10), sink.NewSentimentCounters(), nil)
	hub := ops.NewHub()
	go hub.Run()

	deps := classify.Deps{Registry: reg, Now: func() int { return 12 }}
	engine := classify.NewEngine()

	p := New(cfg, fanin, labels, prices, engine, deps, nil, reg, sk, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	whale := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	blockTime := time.Now()
	base := models.RawTransfer{
		SourceID:  "test",
		Chain:     models.ChainEthereum,
		BlockTime: blockTime,
		FromAddr:  binanceHot,
		ToAddr:    whale,
		Symbol:    "WHL",
		Amount:    decimal.NewFromInt(5_000),
	}

	first := base
	first.TxHash = "0xfirst"
	fanin.Emit(ctx, first)

	waitForStoreLen(t, store, 1)

	// Same whale, token, and USD value within the match window, but the
	// mirror direction (a deposit back to the CEX, so SELL against the
	// first BUY) and a higher gas price so P4's boost makes this one
	// strictly more confident than the first (1.00 vs 0.90) — the merge
	// path, not the suppress path.
	second := base
	second.TxHash = "0xsecond"
	second.FromAddr = whale
	second.ToAddr = binanceHot
	second.GasPriceGwei = 100
	fanin.Emit(ctx, second)

	// Give the merge a moment to land, then assert no second row appeared.
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case <-deadline:
			if len(store.upserted) != 1 {
				t.Fatalf("expected exactly 1 stored record after a merging duplicate, got %d", len(store.upserted))
			}
			stats, ok := reg.Lookup(whale)
			if !ok {
				t.Fatalf("expected the registry to have observed the whale")
			}
			if stats.TradeCount != 1 {
				t.Fatalf("expected the registry to observe the whale exactly once, got %d", stats.TradeCount)
			}
			return
		case <-time.After(10 * time.Millisecond):
			if len(store.upserted) > 1 {
				t.Fatalf("expected exactly 1 stored record after a merging duplicate, got %d", len(store.upserted))
			}
		}
	}
}

func waitForStoreLen(t *testing.T, store *memStore, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if len(store.upserted) >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d stored record(s), got %d", n, len(store.upserted))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDedupShardIsStableForSameWhale(t *testing.T) {
	a := dedupShard("0xabc", 32)
	b := dedupShard("0xabc", 32)
	if a != b {
		t.Fatalf("expected stable shard assignment, got %d then %d", a, b)
	}
}
