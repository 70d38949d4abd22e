package sink

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/rawblock/whale-classifier/internal/models"
)

// AuditEvent is the line-delimited JSON record emitted after every
// successful upsert.
type AuditEvent struct {
	At     time.Time          `json:"at"`
	Record models.WhaleRecord `json:"record"`
}

// AuditLog writes one JSON object per line to w; safe for concurrent use.
type AuditLog struct {
	mu sync.Mutex
	w  io.Writer
}

// NewAuditLog wraps any io.Writer (a file, stdout, or a multi-writer).
func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{w: w}
}

// Emit appends one audit line for rec.
func (a *AuditLog) Emit(rec models.WhaleRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	line, err := json.Marshal(AuditEvent{At: time.Now(), Record: rec})
	if err != nil {
		log.Printf("[sink] audit marshal failed: %v", err)
		return
	}
	line = append(line, '\n')
	if _, err := a.w.Write(line); err != nil {
		log.Printf("[sink] audit write failed: %v", err)
	}
}
