// Package labels implements C1, the Address Label Provider: a two-tier
// cache (process-local striped LRU, read-through persistent store) with a
// rate-limited remote explorer fallback and a built-in CEX/DEX registry.
// Lookup never fails; it degrades to an UNKNOWN label on any error.
package labels

import (
	"context"
	"strings"
	"time"

	"github.com/rawblock/whale-classifier/internal/models"
)

// RemoteExplorer is the external collaborator (block-explorer API) this
// package gates behind a token bucket. Only its data contract matters here;
// the concrete HTTP client lives outside this package's scope.
type RemoteExplorer interface {
	LookupLabel(ctx context.Context, address string, chain models.Chain) (models.AddressLabel, error)
}

// PersistentStore is the persistent read-through tier contract, implemented by the
// gorm-backed Store in this package (or a fake in tests).
type PersistentStore interface {
	Get(address string, chain models.Chain) (models.AddressLabel, bool)
	Upsert(label models.AddressLabel) error
}

// Provider resolves addresses to labels. Construct with NewProvider; it is
// safe for concurrent use by multiple enrichment workers.
type Provider struct {
	cache        *cache
	store        PersistentStore
	remote       RemoteExplorer
	bucket       *tokenBucket
	callDeadline time.Duration
}

// Config configures the provider's cache sizing and remote-call gating.
type Config struct {
	CacheCapacity      int
	CacheStripes       int
	TTL                time.Duration
	NegativeTTL        time.Duration
	RemoteRatePerSec   int
	RemoteCallDeadline time.Duration
}

func NewProvider(cfg Config, store PersistentStore, remote RemoteExplorer) *Provider {
	return &Provider{
		cache:        newCache(cfg.CacheCapacity, cfg.CacheStripes, cfg.TTL, cfg.NegativeTTL),
		store:        store,
		remote:       remote,
		bucket:       newTokenBucket(cfg.RemoteRatePerSec),
		callDeadline: cfg.RemoteCallDeadline,
	}
}

// Lookup resolves addr to a label. It never fails: on any miss or error it
// returns an UNKNOWN label, after caching the negative result for 60s to
// prevent a thundering herd of retries.
func (p *Provider) Lookup(ctx context.Context, addr string, chain models.Chain) models.AddressLabel {
	key := strings.ToLower(addr) + "|" + string(chain)
	now := time.Now()

	if label, negative, found := p.cache.get(key, now); found {
		if negative {
			return models.UnknownLabel(addr, chain)
		}
		return label
	}

	if entry, ok := lookupBuiltin(addr); ok {
		label := models.AddressLabel{
			Address: addr, Chain: chain, Kind: entry.kind,
			EntityName: entry.entityName, Confidence: 0.95, UpdatedAt: now,
		}
		p.cache.set(key, label, now)
		return label
	}

	if p.store != nil {
		if label, ok := p.store.Get(addr, chain); ok {
			p.cache.set(key, label, now)
			return label
		}
	}

	if p.remote != nil && p.bucket.allow(now.UnixNano()) {
		callCtx, cancel := context.WithTimeout(ctx, p.callDeadline)
		label, err := p.remote.LookupLabel(callCtx, addr, chain)
		cancel()
		if err == nil {
			if kind, conf, matched := classifyByKeyword(label.EntityName); matched && label.Kind == "" {
				label.Kind = kind
				label.Confidence = conf
			}
			label.Address = addr
			label.Chain = chain
			label.UpdatedAt = now
			p.cache.set(key, label, now)
			if p.store != nil {
				_ = p.store.Upsert(label)
			}
			return label
		}
	}

	p.cache.setNegative(key, chain, now)
	return models.UnknownLabel(addr, chain)
}
