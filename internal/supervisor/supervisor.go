// Package supervisor implements C9: every ingestion source runs under a
// supervisor providing a health probe, backoff restart, a circuit breaker,
// and a graceful drain-on-shutdown.
package supervisor

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	healthTimeout    = 120 * time.Second
	restartBaseDelay = 1 * time.Second
	restartCapDelay  = 60 * time.Second
	breakerThreshold = 10
	breakerWindow    = 60 * time.Second
	breakerCooldown  = 30 * time.Second
	drainTimeout     = 30 * time.Second
)

// Runnable is anything the supervisor can keep alive: it must return
// promptly once ctx is cancelled. Errors are treated as transient and
// trigger a backoff restart, up to the circuit breaker's patience.
type Runnable interface {
	Run(ctx context.Context) error
	Name() string
}

// breaker tracks consecutive-error accounting for one supervised source.
type breaker struct {
	mu       sync.Mutex
	errors   []time.Time
	openedAt time.Time
}

func (b *breaker) recordError(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, now)
	cutoff := now.Add(-breakerWindow)
	kept := b.errors[:0]
	for _, t := range b.errors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.errors = kept
	if len(b.errors) >= breakerThreshold && b.openedAt.IsZero() {
		b.openedAt = now
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = nil
	b.openedAt = time.Time{}
}

// isOpen reports whether the breaker is still within its cooldown window.
func (b *breaker) isOpen(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return false
	}
	if now.Sub(b.openedAt) >= breakerCooldown {
		// half-open: let the next attempt through, reset bookkeeping.
		b.openedAt = time.Time{}
		b.errors = nil
		return false
	}
	return true
}

// Supervisor runs one Runnable with restart-with-backoff and a circuit
// breaker, tracking the last successful heartbeat for the health probe.
type Supervisor struct {
	target Runnable

	mu          sync.Mutex
	lastSuccess time.Time
	breaker     breaker
}

// New wraps target under supervision.
func New(target Runnable) *Supervisor {
	return &Supervisor{target: target, lastSuccess: time.Now()}
}

// Name returns the supervised target's name, so a Supervisor itself
// satisfies interfaces that key health state by source name.
func (s *Supervisor) Name() string {
	return s.target.Name()
}

// Healthy reports whether the target has emitted within healthTimeout.
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSuccess) < healthTimeout
}

// Heartbeat lets the supervised source report a successful emit; sources
// call this themselves since the supervisor cannot see into their loop.
func (s *Supervisor) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSuccess = time.Now()
}

// Run drives the restart-with-backoff loop until ctx is cancelled, at which
// point it exits once the current attempt's target.Run has returned.
func (s *Supervisor) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if s.breaker.isOpen(time.Now()) {
			log.Printf("[supervisor] %s: circuit breaker open, waiting for cooldown", s.target.Name())
			if !sleepOrDone(ctx, breakerCooldown) {
				return
			}
			continue
		}

		err := s.target.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			s.breaker.recordSuccess()
			attempt = 0
			continue
		}

		log.Printf("[supervisor] %s: exited with error: %v", s.target.Name(), err)
		s.breaker.recordError(time.Now())
		delay := backoffDelay(attempt)
		attempt++
		if !sleepOrDone(ctx, delay) {
			return
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	d := restartBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > restartCapDelay {
			return restartCapDelay
		}
	}
	return d
}

// newTimer is swapped out in tests to avoid real backoff delays.
var newTimer = time.NewTimer

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := newTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Shutdown waits up to drainTimeout for ctx cancellation to have been
// observed by the target, then returns unconditionally so the caller can
// proceed to snapshot caches.
func Shutdown(cancel context.CancelFunc, done <-chan struct{}) {
	cancel()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		log.Println("[supervisor] drain timeout exceeded, forcing shutdown")
	}
}
