// Package registry implements C8: the whale activity tracker P4 consults
// for registry boosts, persisted to a periodic JSON snapshot and rehydrated
// at startup.
package registry

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

const stripeCount = 16 // per spec.md §5's 16-stripe label-cache convention, reused here

type stripe struct {
	mu    sync.RWMutex
	stats map[string]*models.WhaleStats
}

// Registry is a striped-lock map of WhaleStats, safe for concurrent
// observe/lookup from many classification workers.
type Registry struct {
	stripes [stripeCount]*stripe
}

// New builds an empty Registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.stripes {
		r.stripes[i] = &stripe{stats: make(map[string]*models.WhaleStats)}
	}
	return r
}

func (r *Registry) stripeFor(whaleAddress string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(whaleAddress))
	return r.stripes[h.Sum32()%stripeCount]
}

// Observe folds a newly classified, stored trade into the whale's running
// stats.
func (r *Registry) Observe(whaleAddress string, usd decimal.Decimal, token string, at time.Time) {
	s := r.stripeFor(whaleAddress)
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[whaleAddress]
	if !ok {
		stats = &models.WhaleStats{WhaleAddress: whaleAddress}
		s.stats[whaleAddress] = stats
	}
	stats.Observe(usd, token, at)
}

// Lookup returns a value copy of the current stats for whaleAddress, or
// false if the address has never been observed. Implements
// classify.WhaleLookup.
func (r *Registry) Lookup(whaleAddress string) (models.WhaleStats, bool) {
	s := r.stripeFor(whaleAddress)
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[whaleAddress]
	if !ok {
		return models.WhaleStats{}, false
	}
	return *stats, true
}

// snapshotPayload is the on-disk shape: a flat list, easy to diff/inspect.
type snapshotPayload struct {
	SavedAt time.Time           `json:"saved_at"`
	Whales  []models.WhaleStats `json:"whales"`
}

// Snapshot writes the current registry contents to path as JSON.
func (r *Registry) Snapshot(path string) error {
	payload := snapshotPayload{SavedAt: time.Now()}
	for _, s := range r.stripes {
		s.mu.RLock()
		for _, stats := range s.stats {
			payload.Whales = append(payload.Whales, *stats)
		}
		s.mu.RUnlock()
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Rehydrate loads a prior snapshot from path, if it exists. A missing file
// is not an error — a fresh registry starts empty.
func (r *Registry) Rehydrate(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	for i := range payload.Whales {
		stats := payload.Whales[i]
		s := r.stripeFor(stats.WhaleAddress)
		s.mu.Lock()
		s.stats[stats.WhaleAddress] = &stats
		s.mu.Unlock()
	}
	log.Printf("[registry] rehydrated %d whales from %s", len(payload.Whales), path)
	return nil
}

// RunSnapshotLoop periodically snapshots the registry until stop is closed.
func (r *Registry) RunSnapshotLoop(path string, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			if err := r.Snapshot(path); err != nil {
				log.Printf("[registry] final snapshot failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := r.Snapshot(path); err != nil {
				log.Printf("[registry] periodic snapshot failed: %v", err)
			}
		}
	}
}
