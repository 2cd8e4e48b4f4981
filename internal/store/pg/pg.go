// Package pg is the hot store: Postgres via pgx, holding trades, ticks,
// candles, snapshots, contract metadata and the per-area sync checkpoints.
package pg

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store wraps a pgx connection pool and implements the storage ports.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg parse dsn: %w", err)
	}
	cfg.MaxConns = 16

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	log.Printf("[pg] connected host=%s db=%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Migrate creates the schema. Idempotent; runs at every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trades (
			trade_id           TEXT        NOT NULL,
			delivery_area      TEXT        NOT NULL,
			trade_side         TEXT        NOT NULL,
			contract_id        TEXT        NOT NULL,
			contract_name      TEXT        NOT NULL DEFAULT '',
			delivery_start     TIMESTAMPTZ NOT NULL,
			delivery_end       TIMESTAMPTZ NOT NULL,
			duration_minutes   DOUBLE PRECISION NOT NULL DEFAULT 0,
			contract_type      TEXT        NOT NULL,
			price              NUMERIC     NOT NULL,
			volume             NUMERIC     NOT NULL,
			trade_time         TIMESTAMPTZ NOT NULL,
			trade_updated_at   TIMESTAMPTZ,
			state              TEXT        NOT NULL DEFAULT '',
			revision_number    BIGINT      NOT NULL DEFAULT 0,
			phase              TEXT        NOT NULL DEFAULT '',
			cross_exchange     BOOLEAN     NOT NULL DEFAULT FALSE,
			reference_order_id TEXT        NOT NULL DEFAULT '',
			PRIMARY KEY (trade_id, delivery_area, trade_side)
		);
		CREATE INDEX IF NOT EXISTS trades_area_time_idx
			ON trades (delivery_area, trade_time);
		CREATE INDEX IF NOT EXISTS trades_area_delivery_idx
			ON trades (delivery_area, delivery_start);

		CREATE TABLE IF NOT EXISTS candles_1m (
			contract_id   TEXT        NOT NULL,
			area          TEXT        NOT NULL,
			ts            TIMESTAMPTZ NOT NULL,
			contract_type TEXT        NOT NULL,
			open          NUMERIC     NOT NULL,
			high          NUMERIC     NOT NULL,
			low           NUMERIC     NOT NULL,
			close         NUMERIC     NOT NULL,
			volume        NUMERIC     NOT NULL,
			vwap          NUMERIC     NOT NULL,
			trade_count   INTEGER     NOT NULL,
			PRIMARY KEY (contract_id, area, ts)
		);
		CREATE INDEX IF NOT EXISTS candles_area_ts_idx
			ON candles_1m (area, ts);

		CREATE TABLE IF NOT EXISTS ticks (
			tick_id          TEXT        PRIMARY KEY,
			contract_id      TEXT        NOT NULL,
			contract_name    TEXT        NOT NULL DEFAULT '',
			delivery_area    TEXT        NOT NULL,
			delivery_start   TIMESTAMPTZ,
			delivery_end     TIMESTAMPTZ,
			order_id         TEXT        NOT NULL,
			side             TEXT        NOT NULL,
			price            NUMERIC     NOT NULL,
			volume           NUMERIC     NOT NULL,
			remaining_volume NUMERIC     NOT NULL,
			updated_time     TIMESTAMPTZ NOT NULL,
			priority_time    TIMESTAMPTZ,
			type             TEXT        NOT NULL,
			raw_action       TEXT        NOT NULL DEFAULT '',
			aggressor_side   TEXT        NOT NULL DEFAULT 'NONE',
			revision_number  BIGINT      NOT NULL DEFAULT 0,
			is_snapshot      BOOLEAN     NOT NULL DEFAULT FALSE,
			is_deleted       BOOLEAN     NOT NULL DEFAULT FALSE,
			root_updated_at  TIMESTAMPTZ,
			source           TEXT        NOT NULL
		);
		CREATE INDEX IF NOT EXISTS ticks_contract_time_idx
			ON ticks (contract_id, updated_time, revision_number);
		CREATE INDEX IF NOT EXISTS ticks_area_time_idx
			ON ticks (delivery_area, updated_time);

		CREATE TABLE IF NOT EXISTS book_snapshots (
			snapshot_id     TEXT        PRIMARY KEY,
			contract_id     TEXT        NOT NULL,
			contract_name   TEXT        NOT NULL DEFAULT '',
			delivery_area   TEXT        NOT NULL,
			delivery_start  TIMESTAMPTZ,
			delivery_end    TIMESTAMPTZ,
			ts              TIMESTAMPTZ NOT NULL,
			revision_number BIGINT      NOT NULL DEFAULT 0,
			bids            JSONB       NOT NULL,
			asks            JSONB       NOT NULL,
			is_native       BOOLEAN     NOT NULL DEFAULT TRUE
		);
		CREATE INDEX IF NOT EXISTS snapshots_contract_ts_idx
			ON book_snapshots (contract_id, ts);

		CREATE TABLE IF NOT EXISTS contracts (
			contract_id    TEXT        NOT NULL,
			delivery_area  TEXT        NOT NULL,
			contract_name  TEXT        NOT NULL DEFAULT '',
			delivery_start TIMESTAMPTZ NOT NULL,
			delivery_end   TIMESTAMPTZ NOT NULL,
			open_at        TIMESTAMPTZ,
			close_at       TIMESTAMPTZ,
			volume_unit    TEXT        NOT NULL DEFAULT '',
			price_unit     TEXT        NOT NULL DEFAULT '',
			is_archived    BOOLEAN     NOT NULL DEFAULT FALSE,
			updated_at     TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (contract_id, delivery_area)
		);
		CREATE INDEX IF NOT EXISTS contracts_area_delivery_idx
			ON contracts (delivery_area, delivery_start, is_archived);

		CREATE TABLE IF NOT EXISTS trade_fetch_state (
			area              TEXT        PRIMARY KEY,
			last_fetched_time TIMESTAMPTZ NOT NULL,
			status            TEXT        NOT NULL,
			last_error        TEXT        NOT NULL DEFAULT '',
			updated_at        TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS candle_gen_state (
			area                TEXT        PRIMARY KEY,
			last_generated_time TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS order_flow_sync_state (
			area               TEXT        PRIMARY KEY,
			last_archived_time TIMESTAMPTZ NOT NULL,
			last_realtime_time TIMESTAMPTZ NOT NULL,
			status             TEXT        NOT NULL,
			last_error         TEXT        NOT NULL DEFAULT '',
			updated_at         TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("pg migrate: %w", err)
	}
	return nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromNullTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.UTC()
}

// Decimals travel as text; NUMERIC accepts and emits it losslessly without
// a custom codec.
func dec(d decimal.Decimal) string { return d.String() }

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
