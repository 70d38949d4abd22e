package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

// AlertFeed is the "large-value alert feed" source kind: it subscribes to
// a firehose of pre-filtered whale transactions, grounded on the pack's
// whale-alert-style HTTP adapter (polled here rather than push, since the
// data contract is a plain HTTP GET).
type AlertFeed struct {
	client      *http.Client
	endpoint    string
	apiKey      string
	minValueUSD int
	pollInterval time.Duration
}

func NewAlertFeed(endpoint, apiKey string, minValueUSD int, pollInterval time.Duration) *AlertFeed {
	return &AlertFeed{
		client:       &http.Client{Timeout: 10 * time.Second},
		endpoint:     endpoint,
		apiKey:       apiKey,
		minValueUSD:  minValueUSD,
		pollInterval: pollInterval,
	}
}

func (f *AlertFeed) ID() string { return "large-value-alert-feed" }

type alertFeedResponse struct {
	Transactions []struct {
		From struct {
			Address string `json:"address"`
		} `json:"from"`
		To struct {
			Address string `json:"address"`
		} `json:"to"`
		Blockchain string  `json:"blockchain"`
		Symbol     string  `json:"symbol"`
		Hash       string  `json:"hash"`
		Amount     float64 `json:"amount"`
		Timestamp  int64   `json:"timestamp"`
	} `json:"transactions"`
}

func (f *AlertFeed) Run(ctx context.Context, out chan<- models.RawTransfer) error {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.poll(ctx, out); err != nil {
				return err
			}
		}
	}
}

func (f *AlertFeed) poll(ctx context.Context, out chan<- models.RawTransfer) error {
	url := fmt.Sprintf("%s?api_key=%s&min_value=%d", f.endpoint, f.apiKey, f.minValueUSD)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build alert feed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alert feed returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded alertFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode alert feed response: %w", err)
	}

	for _, tx := range decoded.Transactions {
		select {
		case out <- models.RawTransfer{
			SourceID:  f.ID(),
			Chain:     models.Chain(tx.Blockchain),
			TxHash:    tx.Hash,
			BlockTime: time.Unix(tx.Timestamp, 0).UTC(),
			FromAddr:  tx.From.Address,
			ToAddr:    tx.To.Address,
			Symbol:    tx.Symbol,
			Amount:    decimal.NewFromFloat(tx.Amount),
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
