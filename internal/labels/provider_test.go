package labels

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/whale-classifier/internal/models"
)

func testConfig() Config {
	return Config{
		CacheCapacity:      1000,
		CacheStripes:       4,
		TTL:                time.Hour,
		NegativeTTL:        time.Minute,
		RemoteRatePerSec:   5,
		RemoteCallDeadline: 2 * time.Second,
	}
}

func TestLookupBuiltinBinanceHotWallet(t *testing.T) {
	p := NewProvider(testConfig(), nil, nil)
	label := p.Lookup(context.Background(), "0x28c6c06298d514db089934071355e5743bf21d60", models.ChainEthereum)
	if label.Kind != models.KindCEX {
		t.Fatalf("expected CEX, got %s", label.Kind)
	}
	if label.EntityName != "Binance" {
		t.Fatalf("expected Binance, got %s", label.EntityName)
	}
	if label.Confidence != 0.95 {
		t.Fatalf("expected 0.95 confidence, got %f", label.Confidence)
	}
}

func TestLookupUnknownNeverFails(t *testing.T) {
	p := NewProvider(testConfig(), nil, nil)
	label := p.Lookup(context.Background(), "0xdeadbeef000000000000000000000000000000", models.ChainEthereum)
	if label.Kind != models.KindUnknown {
		t.Fatalf("expected UNKNOWN, got %s", label.Kind)
	}
}

type fakeStore struct {
	labels map[string]models.AddressLabel
}

func (f *fakeStore) Get(address string, chain models.Chain) (models.AddressLabel, bool) {
	l, ok := f.labels[address]
	return l, ok
}

func (f *fakeStore) Upsert(label models.AddressLabel) error {
	f.labels[label.Address] = label
	return nil
}

func TestLookupReadsThroughPersistentStore(t *testing.T) {
	store := &fakeStore{labels: map[string]models.AddressLabel{
		"0xaaaa": {Address: "0xaaaa", Chain: models.ChainEthereum, Kind: models.KindDEX, Confidence: 0.8},
	}}
	p := NewProvider(testConfig(), store, nil)
	label := p.Lookup(context.Background(), "0xaaaa", models.ChainEthereum)
	if label.Kind != models.KindDEX {
		t.Fatalf("expected DEX from persistent store, got %s", label.Kind)
	}
}

type fakeRemote struct {
	label models.AddressLabel
	err   error
	calls int
}

func (f *fakeRemote) LookupLabel(ctx context.Context, address string, chain models.Chain) (models.AddressLabel, error) {
	f.calls++
	return f.label, f.err
}

func TestLookupRateLimitsRemoteFallback(t *testing.T) {
	remote := &fakeRemote{label: models.AddressLabel{Kind: models.KindEOA, Confidence: 0.5}}
	cfg := testConfig()
	cfg.RemoteRatePerSec = 1
	p := NewProvider(cfg, nil, remote)

	for i := 0; i < 5; i++ {
		addr := "0xbbb" + string(rune('a'+i))
		p.Lookup(context.Background(), addr, models.ChainEthereum)
	}
	if remote.calls > 1 {
		t.Fatalf("expected at most 1 remote call within the burst window, got %d", remote.calls)
	}
}
