package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/whale-classifier/internal/models"
)

func TestFanInBlocksWhenFullByDefault(t *testing.T) {
	f := NewFanIn(1, false)
	f.Emit(context.Background(), models.RawTransfer{FromAddr: "0xA", ToAddr: "0xB"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f.Emit(ctx, models.RawTransfer{FromAddr: "0xC", ToAddr: "0xD"})

	if f.Received() != 1 {
		t.Fatalf("expected exactly one event received while blocked, got %d", f.Received())
	}
}

func TestFanInDropOldestUnderBackpressure(t *testing.T) {
	f := NewFanIn(1, true)
	f.Emit(context.Background(), models.RawTransfer{FromAddr: "0xA", ToAddr: "0xB"})
	f.Emit(context.Background(), models.RawTransfer{FromAddr: "0xC", ToAddr: "0xD"})

	if f.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", f.Dropped())
	}

	newest := <-f.Out()
	if newest.FromAddr != "0xc" {
		t.Fatalf("expected the newest event to survive, got %s", newest.FromAddr)
	}
}

func TestNormalizeLowercasesAddresses(t *testing.T) {
	n := Normalize(models.RawTransfer{FromAddr: "0xABC", ToAddr: "0xDEF", TokenAddr: "0xTOK"})
	if n.FromAddr != "0xabc" || n.ToAddr != "0xdef" || n.TokenAddr != "0xtok" {
		t.Fatalf("expected lowercased addresses, got %+v", n)
	}
}
