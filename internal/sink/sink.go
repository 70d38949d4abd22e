package sink

import (
	"context"

	"github.com/rawblock/whale-classifier/internal/models"
)

// Store is the storage contract C7 requires: idempotent upsert keyed on
// (chain, tx_hash).
type Store interface {
	Upsert(ctx context.Context, rec models.WhaleRecord) error
}

// Sink wires a Store behind retry-with-backoff, a dead-letter queue for
// permanent failures, sentiment counters, and an audit log — the single
// entrypoint the pipeline's sink-stage workers call.
type Sink struct {
	store     Store
	dlq       *DeadLetterQueue
	sentiment *SentimentCounters
	audit     *AuditLog
}

// NewSink builds a Sink. audit may be nil to disable audit emission.
func NewSink(store Store, dlq *DeadLetterQueue, sentiment *SentimentCounters, audit *AuditLog) *Sink {
	return &Sink{store: store, dlq: dlq, sentiment: sentiment, audit: audit}
}

// Write upserts rec, retrying transient failures before falling through to
// the dead-letter queue. It returns nothing — permanent failures are
// recorded, not propagated, so the pipeline's sink stage can keep draining.
func (s *Sink) Write(ctx context.Context, rec models.WhaleRecord) {
	err := withRetry(ctx, func(ctx context.Context) error {
		return s.store.Upsert(ctx, rec)
	})
	if err != nil {
		s.dlq.Push(rec, err)
		return
	}

	if s.sentiment != nil {
		s.sentiment.Observe(rec)
	}
	if s.audit != nil {
		s.audit.Emit(rec)
	}
}
