// Package sink implements C7: the storage contract whale records are
// persisted through. Upserts are idempotent on (chain, tx_hash); transient
// failures retry with exponential backoff before falling to the
// dead-letter queue.
package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/whale-classifier/internal/dedup"
	"github.com/rawblock/whale-classifier/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS whale_records (
	chain                TEXT NOT NULL,
	tx_hash              TEXT NOT NULL,
	block_time           TIMESTAMPTZ NOT NULL,
	whale_address        TEXT,
	counterparty_address TEXT,
	counterparty_kind    TEXT NOT NULL,
	is_cex_transaction   BOOLEAN NOT NULL DEFAULT FALSE,
	classification       TEXT NOT NULL,
	confidence           DOUBLE PRECISION NOT NULL,
	token_symbol         TEXT,
	usd_value            NUMERIC,
	from_label           TEXT,
	to_label             TEXT,
	evidence             JSONB,
	source_id            TEXT,
	ingested_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (chain, tx_hash)
);
CREATE INDEX IF NOT EXISTS idx_whale_records_whale_token ON whale_records (whale_address, token_symbol, block_time DESC);
`

// PostgresStore persists WhaleRecords and serves the dedup package's L2
// storage lookback.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("[sink] connected to PostgreSQL for whale records")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the whale_records table if it does not already exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migration: %w", err)
	}
	log.Println("[sink] whale_records schema initialized")
	return nil
}

// Upsert stores rec. A second write for the same (chain, tx_hash) only
// wins the row's descriptive fields when its confidence is at least the
// stored one (ties go to the newer write) — the stored confidence is always the max of the two
// attempts, and every field that describes the classification (not just
// the number itself) tracks whichever attempt owns that max, so a
// low-confidence re-delivery can never regress an already-settled row.
func (s *PostgresStore) Upsert(ctx context.Context, rec models.WhaleRecord) error {
	const sql = `
		INSERT INTO whale_records
			(chain, tx_hash, block_time, whale_address, counterparty_address,
			 counterparty_kind, is_cex_transaction, classification, confidence,
			 token_symbol, usd_value, from_label, to_label, evidence, source_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (chain, tx_hash) DO UPDATE SET
			whale_address        = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.whale_address ELSE whale_records.whale_address END,
			counterparty_address = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.counterparty_address ELSE whale_records.counterparty_address END,
			counterparty_kind    = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.counterparty_kind ELSE whale_records.counterparty_kind END,
			is_cex_transaction   = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.is_cex_transaction ELSE whale_records.is_cex_transaction END,
			classification       = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.classification ELSE whale_records.classification END,
			confidence           = GREATEST(whale_records.confidence, EXCLUDED.confidence),
			token_symbol         = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.token_symbol ELSE whale_records.token_symbol END,
			usd_value            = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.usd_value ELSE whale_records.usd_value END,
			from_label           = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.from_label ELSE whale_records.from_label END,
			to_label             = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.to_label ELSE whale_records.to_label END,
			evidence             = CASE WHEN EXCLUDED.confidence >= whale_records.confidence THEN EXCLUDED.evidence ELSE whale_records.evidence END;
	`
	_, err := s.pool.Exec(ctx, sql,
		rec.Chain, rec.TxHash, rec.BlockTime, rec.WhaleAddress, rec.CounterpartyAddress,
		rec.CounterpartyKind, rec.IsCEXTransaction, rec.Classification, rec.Confidence,
		rec.TokenSymbol, rec.USDValue, rec.FromLabel, rec.ToLabel, rec.Evidence, rec.SourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert whale_records: %w", err)
	}
	return nil
}

// RecentRecords implements dedup.Lookback: the last `limit` records for a
// (whale_address, token_symbol) key within `within` of now.
func (s *PostgresStore) RecentRecords(ctx context.Context, whaleAddress, tokenSymbol string, within time.Duration, limit int) ([]dedup.Record, error) {
	const sql = `
		SELECT tx_hash, whale_address, token_symbol, block_time, usd_value,
		       classification, counterparty_kind, is_cex_transaction, confidence
		FROM whale_records
		WHERE whale_address = $1 AND token_symbol = $2 AND block_time >= $3
		ORDER BY block_time DESC
		LIMIT $4
	`
	since := time.Now().Add(-within)
	rows, err := s.pool.Query(ctx, sql, whaleAddress, tokenSymbol, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dedup.Record
	for rows.Next() {
		var r dedup.Record
		var usd float64
		if err := rows.Scan(&r.Hash, &r.WhaleAddress, &r.TokenSymbol, &r.BlockTime, &usd,
			&r.Kind, &r.CounterpartyKind, &r.IsCEXTransaction, &r.Confidence); err != nil {
			return nil, err
		}
		r.USDValue = usd
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateConfidence implements dedup.Lookback's merge-in-place path.
func (s *PostgresStore) UpdateConfidence(ctx context.Context, hash string, rec dedup.Record) error {
	const sql = `
		UPDATE whale_records SET confidence = $1, classification = $2
		WHERE tx_hash = $3
	`
	_, err := s.pool.Exec(ctx, sql, rec.Confidence, rec.Kind, hash)
	return err
}

// WhaleTokenKey names one (whale_address, token_symbol) partition of
// whale_records, the unit the cleanup-duplicates sweep pages over.
type WhaleTokenKey struct {
	WhaleAddress string
	TokenSymbol  string
}

// DistinctWhaleTokenKeys lists every (whale_address, token_symbol) pair
// with activity since `since`, so the cleanup-duplicates sweep knows
// which partitions to re-run the suppressor over.
func (s *PostgresStore) DistinctWhaleTokenKeys(ctx context.Context, since time.Time) ([]WhaleTokenKey, error) {
	const sql = `
		SELECT DISTINCT whale_address, token_symbol
		FROM whale_records
		WHERE block_time >= $1 AND whale_address IS NOT NULL AND whale_address <> ''
	`
	rows, err := s.pool.Query(ctx, sql, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WhaleTokenKey
	for rows.Next() {
		var k WhaleTokenKey
		if err := rows.Scan(&k.WhaleAddress, &k.TokenSymbol); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// DeleteRecord removes the row identified by tx_hash, used by the
// cleanup-duplicates --live sweep to drop a row once its data has been
// folded into the record it duplicates.
func (s *PostgresStore) DeleteRecord(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM whale_records WHERE tx_hash = $1`, hash)
	return err
}
