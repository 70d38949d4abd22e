// Package ingest implements C3, the Ingestion Fan-In: multiple independent
// sources normalizing raw events into RawTransfer, merged onto one bounded
// shared channel.
package ingest

import (
	"context"
	"strings"

	"github.com/rawblock/whale-classifier/internal/models"
)

// Source is one independent ingestion stream. Run blocks until ctx is
// cancelled or an unrecoverable error occurs, emitting normalized events
// onto out. A source that cannot decode a field leaves it empty rather
// than failing the whole event.
type Source interface {
	ID() string
	Run(ctx context.Context, out chan<- models.RawTransfer) error
}

// Normalize lowercases addresses and the token address, matching the
// normalization invariants every source must uphold before emission.
func Normalize(t models.RawTransfer) models.RawTransfer {
	t.FromAddr = strings.ToLower(t.FromAddr)
	t.ToAddr = strings.ToLower(t.ToAddr)
	t.TokenAddr = strings.ToLower(t.TokenAddr)
	return t
}
