// Package pipeline wires the stages described in spec.md §5: ingestion
// fan-in, a bounded enrichment pool, the classification engine, the
// whale-perspective/dedup shards, and the sink pool, each stage connected
// by a bounded channel so a slow downstream stage applies backpressure
// rather than unbounded memory growth.
package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/rawblock/whale-classifier/internal/classify"
	"github.com/rawblock/whale-classifier/internal/config"
	"github.com/rawblock/whale-classifier/internal/dedup"
	"github.com/rawblock/whale-classifier/internal/ingest"
	"github.com/rawblock/whale-classifier/internal/models"
	"github.com/rawblock/whale-classifier/internal/ops"
	"github.com/rawblock/whale-classifier/internal/perspective"
	"github.com/rawblock/whale-classifier/internal/price"
	"github.com/rawblock/whale-classifier/internal/registry"
	"github.com/rawblock/whale-classifier/internal/sink"
)

// LabelProvider is the C1 read contract the enrichment stage consults.
type LabelProvider interface {
	Lookup(ctx context.Context, addr string, chain models.Chain) models.AddressLabel
}

// Pipeline owns every queue and worker pool between ingestion and the
// sink, plus the collaborators (labels, price, registry, dedup) each
// stage consults.
type Pipeline struct {
	cfg config.Config

	fanin *ingest.FanIn

	labels LabelProvider
	prices *price.Resolver

	engine *classify.Engine
	deps   classify.Deps

	shards []*dedup.Suppressor

	registry *registry.Registry
	sink     *sink.Sink

	enriched   chan models.EnrichedTransfer
	classified chan classifiedItem

	hub *ops.Hub

	wg sync.WaitGroup
}

type classifiedItem struct {
	transfer models.EnrichedTransfer
	view     perspective.View
	class    models.Classification
}

// New builds a Pipeline from its already-constructed collaborators. The
// number of dedup shards is cfg.DedupShards, sharded on
// hash(whale_address) mod N so no two workers ever race on the same
// whale's ring cache.
func New(cfg config.Config, fanin *ingest.FanIn, labels LabelProvider, prices *price.Resolver, engine *classify.Engine, deps classify.Deps, l2 dedup.Lookback, reg *registry.Registry, sk *sink.Sink, hub *ops.Hub) *Pipeline {
	shards := make([]*dedup.Suppressor, cfg.DedupShards)
	for i := range shards {
		shards[i] = dedup.NewSuppressor(l2)
	}

	return &Pipeline{
		cfg:        cfg,
		fanin:      fanin,
		labels:     labels,
		prices:     prices,
		engine:     engine,
		deps:       deps,
		shards:     shards,
		registry:   reg,
		sink:       sk,
		enriched:   make(chan models.EnrichedTransfer, cfg.EnrichedQueueSize),
		classified: make(chan classifiedItem, cfg.ClassifiedQueueSize),
		hub:        hub,
	}
}

// Run starts every worker pool and blocks until ctx is cancelled, then
// drains in order: stop accepting new raw events, let in-flight items
// flow to the sink, and return once every worker has exited.
func (p *Pipeline) Run(ctx context.Context) {
	for i := 0; i < p.cfg.EnrichmentWorkers; i++ {
		p.wg.Add(1)
		go p.enrichWorker(ctx)
	}
	for i := 0; i < p.cfg.ClassificationWorkers; i++ {
		p.wg.Add(1)
		go p.classifyWorker(ctx, i)
	}
	for i := 0; i < p.cfg.SinkWorkers; i++ {
		p.wg.Add(1)
		go p.sinkWorker(ctx)
	}

	<-ctx.Done()
	p.wg.Wait()
}

func (p *Pipeline) enrichWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-p.fanin.Out():
			if !ok {
				return
			}
			enriched := p.enrich(ctx, raw)
			select {
			case p.enriched <- enriched:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) enrich(ctx context.Context, raw models.RawTransfer) models.EnrichedTransfer {
	labelCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.LabelCallDeadlineSeconds)*time.Second)
	defer cancel()

	fromLabel := p.labels.Lookup(labelCtx, raw.FromAddr, raw.Chain)
	toLabel := p.labels.Lookup(labelCtx, raw.ToAddr, raw.Chain)

	enriched := models.EnrichedTransfer{RawTransfer: raw, FromLabel: &fromLabel, ToLabel: &toLabel}

	symbol := raw.Symbol
	if symbol == "" {
		symbol = raw.TokenAddr
	}
	if usdPerUnit, ok := p.prices.Price(symbol, raw.BlockTime); ok {
		enriched.USDValue = raw.Amount.Mul(usdPerUnit)
	} else {
		enriched.PriceMissing = true
	}

	return enriched
}

func (p *Pipeline) classifyWorker(ctx context.Context, workerIdx int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.enriched:
			if !ok {
				return
			}
			// WhaleAddress never depends on the classified kind (only a
			// DEX row's Direction does), so a provisional transform run
			// with an unknown kind already gives P4 the right registry
			// key; the authoritative view is recomputed once the kind
			// is known, for Direction's sake.
			provisional := perspective.Transform(t, models.ClassUnknown)
			if provisional.Skip {
				continue
			}
			class := p.engine.Classify(ctx, t, provisional.WhaleAddress, p.deps)
			if class.Skip {
				continue
			}
			view := perspective.Transform(t, class.Kind)
			if view.Skip {
				continue
			}
			item := classifiedItem{transfer: t, view: view, class: class}
			select {
			case p.classified <- item:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) sinkWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.classified:
			if !ok {
				return
			}
			p.settle(ctx, item)
		}
	}
}

// settle runs an item through its dedup shard. A near-duplicate match
// (whether it merges into the existing row or is discarded outright)
// never becomes its own persisted row or registry observation — the
// shard has already folded it into the existing record; only the shard's
// structured suppression event is broadcast to the ops dashboard feed.
// Only a genuinely new event is written to the sink, observed into the
// whale registry, and broadcast as a record.
func (p *Pipeline) settle(ctx context.Context, item classifiedItem) {
	rec := toWhaleRecord(item)
	shard := p.shards[dedupShard(item.view.WhaleAddress, len(p.shards))]

	usd, _ := rec.USDValue.Float64()
	outcome := shard.Check(ctx, dedup.Record{
		Hash:             rec.Key(),
		WhaleAddress:     rec.WhaleAddress,
		TokenSymbol:      rec.TokenSymbol,
		BlockTime:        rec.BlockTime,
		USDValue:         usd,
		Kind:             rec.Classification,
		CounterpartyKind: rec.CounterpartyKind,
		IsCEXTransaction: rec.IsCEXTransaction,
		Confidence:       rec.Confidence,
	})
	if outcome.Suppressed || outcome.Merged {
		if p.hub != nil && outcome.Event != nil {
			if payload, err := json.Marshal(outcome.Event); err == nil {
				p.hub.Broadcast(payload)
			} else {
				log.Printf("[pipeline] failed to marshal dedup event: %v", err)
			}
		}
		return
	}

	p.sink.Write(ctx, rec)
	p.registry.Observe(rec.WhaleAddress, rec.USDValue, rec.TokenSymbol, rec.BlockTime)

	if p.hub != nil {
		if payload, err := json.Marshal(rec); err == nil {
			p.hub.Broadcast(payload)
		} else {
			log.Printf("[pipeline] failed to marshal dashboard payload: %v", err)
		}
	}
}

func toWhaleRecord(item classifiedItem) models.WhaleRecord {
	t := item.transfer
	fromLabel, toLabel := "", ""
	if t.FromLabel != nil {
		fromLabel = t.FromLabel.EntityName
	}
	if t.ToLabel != nil {
		toLabel = t.ToLabel.EntityName
	}
	symbol := t.Symbol
	if symbol == "" {
		symbol = t.TokenAddr
	}
	return models.WhaleRecord{
		Chain:               t.Chain,
		TxHash:              t.TxHash,
		BlockTime:           t.BlockTime,
		WhaleAddress:        item.view.WhaleAddress,
		CounterpartyAddress: item.view.CounterpartyAddr,
		CounterpartyKind:    item.view.CounterpartyKind,
		IsCEXTransaction:    item.view.IsCEXTransaction,
		Classification:      item.class.Kind,
		Confidence:          item.class.Confidence,
		TokenSymbol:         symbol,
		USDValue:            t.USDValue,
		FromLabel:           fromLabel,
		ToLabel:             toLabel,
		Evidence:            item.class.Evidence,
		SourceID:            t.SourceID,
		IngestedAt:          time.Now(),
	}
}

// dedupShard maps a whale address to one of n shards by a cheap string
// hash, keeping a given whale's events serialized through one suppressor
// so its ring cache never races.
func dedupShard(whaleAddress string, n int) int {
	if n <= 1 {
		return 0
	}
	var h uint32 = 2166136261
	for i := 0; i < len(whaleAddress); i++ {
		h ^= uint32(whaleAddress[i])
		h *= 16777619
	}
	return int(h % uint32(n))
}
