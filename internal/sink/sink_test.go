package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

func decimalFromInt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func init() { sleep = func(time.Duration) {} }

type fakeStore struct {
	failTimes int
	calls     int
	upserted  []models.WhaleRecord
}

func (f *fakeStore) Upsert(ctx context.Context, rec models.WhaleRecord) error {
	f.calls++
	if f.calls <= f.failTimes {
		return errors.New("transient failure")
	}
	f.upserted = append(f.upserted, rec)
	return nil
}

func TestSinkRetriesThenSucceeds(t *testing.T) {
	store := &fakeStore{failTimes: 2}
	dlq := NewDeadLetterQueue(10)
	s := NewSink(store, dlq, NewSentimentCounters(), nil)

	s.Write(context.Background(), models.WhaleRecord{TxHash: "0xA"})

	if len(store.upserted) != 1 {
		t.Fatalf("expected exactly one successful upsert, got %d", len(store.upserted))
	}
	if dlq.Len() != 0 {
		t.Fatalf("expected empty dead-letter queue, got %d", dlq.Len())
	}
}

func TestSinkDeadLettersAfterExhaustingRetries(t *testing.T) {
	store := &fakeStore{failTimes: 999}
	dlq := NewDeadLetterQueue(10)
	s := NewSink(store, dlq, NewSentimentCounters(), nil)

	s.Write(context.Background(), models.WhaleRecord{TxHash: "0xB"})

	if dlq.Len() != 1 {
		t.Fatalf("expected one dead letter, got %d", dlq.Len())
	}
	if len(store.upserted) != 0 {
		t.Fatalf("expected no successful upserts, got %d", len(store.upserted))
	}
}

func TestSentimentCountersAccumulateByToken(t *testing.T) {
	c := NewSentimentCounters()
	c.Observe(models.WhaleRecord{TokenSymbol: "ETH", Classification: models.ClassBuy, USDValue: decimalFromInt(100)})
	c.Observe(models.WhaleRecord{TokenSymbol: "ETH", Classification: models.ClassSell, USDValue: decimalFromInt(40)})

	buy, sell, count := c.Snapshot("ETH")
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if !buy.Equal(decimalFromInt(100)) || !sell.Equal(decimalFromInt(40)) {
		t.Fatalf("buy/sell mismatch: %s / %s", buy, sell)
	}
}
