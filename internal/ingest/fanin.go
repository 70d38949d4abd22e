package ingest

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/rawblock/whale-classifier/internal/models"
)

// FanIn merges every source's output onto one bounded channel. When the
// channel is full a source blocks by default; DropOldest enables the
// configured drop-budget policy instead (spec.md §4.3's backpressure rule).
type FanIn struct {
	out        chan models.RawTransfer
	dropOldest bool

	received atomic.Int64
	dropped  atomic.Int64
}

func NewFanIn(capacity int, dropOldest bool) *FanIn {
	return &FanIn{
		out:        make(chan models.RawTransfer, capacity),
		dropOldest: dropOldest,
	}
}

// Out is the shared channel the enrichment pool reads from.
func (f *FanIn) Out() <-chan models.RawTransfer {
	return f.out
}

// Received returns the total count of events ever emitted downstream.
func (f *FanIn) Received() int64 { return f.received.Load() }

// Dropped returns the total count of events discarded under backpressure.
func (f *FanIn) Dropped() int64 { return f.dropped.Load() }

// Emit normalizes and publishes one event from a source. It blocks if the
// channel is full, unless drop-oldest is configured, in which case the
// oldest queued event is discarded and counted.
func (f *FanIn) Emit(ctx context.Context, t models.RawTransfer) {
	normalized := Normalize(t)

	if !f.dropOldest {
		select {
		case f.out <- normalized:
			f.received.Add(1)
		case <-ctx.Done():
		}
		return
	}

	select {
	case f.out <- normalized:
		f.received.Add(1)
	default:
		select {
		case old := <-f.out:
			_ = old
			f.dropped.Add(1)
			log.Printf("[FanIn] dropped oldest event under backpressure, total dropped=%d", f.dropped.Load())
			select {
			case f.out <- normalized:
				f.received.Add(1)
			default:
			}
		default:
			select {
			case f.out <- normalized:
				f.received.Add(1)
			case <-ctx.Done():
			}
		}
	}
}

// RunSource starts a single source under ctx, publishing every emitted
// event through f onto the shared fan-in channel. The caller (supervisor)
// owns restart/backoff policy; RunSource just runs once.
func RunSource(ctx context.Context, s Source, f *FanIn) error {
	sourceOut := make(chan models.RawTransfer, 64)
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Run(ctx, sourceOut)
		close(sourceOut)
	}()

	for {
		select {
		case t, ok := <-sourceOut:
			if !ok {
				return <-errCh
			}
			f.Emit(ctx, t)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
