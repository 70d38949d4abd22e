package sink

import (
	"context"
	"errors"
	"time"
)

// ──────────────────────────────────────────────────────────────────────
// Exponential backoff retry
//
// Transient upsert failures (connection resets, pool exhaustion) retry
// with backoff base 200ms, factor 2, capped at 30s, up to 5 attempts.
// A permanent failure after the last attempt is handed to the dead-letter
// queue alongside the original payload and the last error.
// ──────────────────────────────────────────────────────────────────────

const (
	retryBase     = 200 * time.Millisecond
	retryFactor   = 2
	retryCap      = 30 * time.Second
	retryMaxTries = 5
)

var errRetriesExhausted = errors.New("sink: retries exhausted")

// sleep is swapped out in tests to avoid real backoff delays.
var sleep = time.Sleep

func backoffDelay(attempt int) time.Duration {
	d := retryBase
	for i := 0; i < attempt; i++ {
		d *= retryFactor
		if d > retryCap {
			return retryCap
		}
	}
	return d
}

// withRetry runs op up to retryMaxTries times with exponential backoff,
// returning the last error if every attempt failed.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < retryMaxTries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sleep(backoffDelay(attempt - 1))
		}
		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errRetriesExhausted
	}
	return lastErr
}
