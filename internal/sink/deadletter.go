package sink

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/whale-classifier/internal/models"
)

// DeadLetter is a permanently-failed upsert: the original payload plus the
// last error, kept in memory for operator inspection via the ops surface.
type DeadLetter struct {
	ID        string             `json:"id"`
	Record    models.WhaleRecord `json:"record"`
	LastError string             `json:"last_error"`
	FailedAt  time.Time          `json:"failed_at"`
}

// DeadLetterQueue is a bounded in-memory holding area; production
// deployments would additionally persist these to a durable queue.
type DeadLetterQueue struct {
	mu    sync.Mutex
	items []DeadLetter
	max   int
}

// NewDeadLetterQueue builds a queue retaining at most max entries (oldest
// dropped first).
func NewDeadLetterQueue(max int) *DeadLetterQueue {
	if max <= 0 {
		max = 1000
	}
	return &DeadLetterQueue{max: max}
}

// Push records a permanent failure.
func (q *DeadLetterQueue) Push(rec models.WhaleRecord, lastErr error) DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	dl := DeadLetter{
		ID:        uuid.NewString(),
		Record:    rec,
		LastError: lastErr.Error(),
		FailedAt:  time.Now(),
	}
	q.items = append(q.items, dl)
	if len(q.items) > q.max {
		q.items = q.items[len(q.items)-q.max:]
	}
	return dl
}

// List returns a snapshot of the current dead letters.
func (q *DeadLetterQueue) List() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.items))
	copy(out, q.items)
	return out
}

// Len reports the current queue size.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
