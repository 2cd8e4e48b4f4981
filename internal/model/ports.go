package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the ingestion and derivation logic from the
// concrete stores (Postgres, parquet cold files, Redis). Each store
// implementation satisfies one or more of them; tests use in-memory fakes.

// TradeWriter persists trade legs idempotently on (trade_id, area, side).
type TradeWriter interface {
	// UpsertTrades inserts or updates a batch; only the mutable subset
	// (updated_at, state, revision, price, volume) changes on conflict.
	UpsertTrades(ctx context.Context, trades []Trade) error
}

// TradeReader serves trade rows to the candle pipeline and the read API.
type TradeReader interface {
	// TradesInWindow returns trades with trade_time in [from, to), ordered
	// by trade_time ascending.
	TradesInWindow(ctx context.Context, area string, from, to time.Time) ([]Trade, error)

	// TradesForContract returns raw rows for diagnostics, ordered by trade_time.
	TradesForContract(ctx context.Context, area, contractID string) ([]Trade, error)

	// TradedContractsOnDate returns one row per contract whose delivery
	// starts on the given UTC date.
	TradedContractsOnDate(ctx context.Context, area string, date time.Time) ([]Trade, error)

	// TradeSpan reports the min/max trade_time and row count for an area.
	TradeSpan(ctx context.Context, area string) (min, max time.Time, count int64, err error)
}

// CandleWriter persists derived candles, replacing all derived fields on
// conflict so re-derivation is idempotent.
type CandleWriter interface {
	UpsertCandles(ctx context.Context, candles []Candle) error
}

// CandleReader serves candle series to the read API and the live runner.
type CandleReader interface {
	// CandlesForContract returns the full series sorted by timestamp.
	CandlesForContract(ctx context.Context, area, contractID string) ([]Candle, error)

	// RecentCandles returns the latest n candles for an area across
	// contracts, newest last.
	RecentCandles(ctx context.Context, area string, n int) ([]Candle, error)
}

// TickWriter persists ticks with insert-ignore semantics on tick_id.
type TickWriter interface {
	// InsertTicks writes a batch; conflicting tick_ids are skipped.
	// Returns the number of rows actually inserted.
	InsertTicks(ctx context.Context, ticks []Tick) (int64, error)
}

// TickReader serves the tick event log from the hot store.
type TickReader interface {
	// TicksForContract returns all ticks for a contract with
	// updated_time <= until, ordered by (updated_time, revision_number).
	TicksForContract(ctx context.Context, contractID string, until time.Time) ([]Tick, error)

	// TicksInRange returns ticks for a contract within [from, to].
	TicksInRange(ctx context.Context, contractID string, from, to time.Time) ([]Tick, error)

	// RecentTicks returns ticks for an area with updated_time >= since,
	// ordered by updated_time ascending.
	RecentTicks(ctx context.Context, area string, since time.Time) ([]Tick, error)
}

// SnapshotWriter persists native order book snapshots.
type SnapshotWriter interface {
	InsertSnapshots(ctx context.Context, snaps []BookSnapshot) error
}

// ContractStore persists order-book contract metadata and archival marks.
type ContractStore interface {
	// UpsertContracts updates name, open/close times and updated_at on conflict.
	UpsertContracts(ctx context.Context, contracts []Contract) error

	// UnarchivedContracts lists contracts of an area whose delivery starts
	// on the given day and that are not yet archived.
	UnarchivedContracts(ctx context.Context, area string, day time.Time) ([]Contract, error)

	// MarkContractArchived flips is_archived for one contract.
	MarkContractArchived(ctx context.Context, contractID, area string) error
}

// StateStore reads and writes the three per-area checkpoint records.
// Getters return (nil, nil) when no record exists yet.
type StateStore interface {
	GetTradeFetchState(ctx context.Context, area string) (*TradeFetchState, error)
	SaveTradeFetchState(ctx context.Context, st *TradeFetchState) error

	GetCandleGenState(ctx context.Context, area string) (*CandleGenState, error)
	SaveCandleGenState(ctx context.Context, st *CandleGenState) error

	GetOrderFlowSyncState(ctx context.Context, area string) (*OrderFlowSyncState, error)
	SaveOrderFlowSyncState(ctx context.Context, st *OrderFlowSyncState) error
}

// TickFileStore is the cold tier: one columnar file per
// (area, delivery date, contract).
type TickFileStore interface {
	// WriteTickFile persists the full tick log of a contract for a day.
	// The write is atomic; an existing file is replaced as a whole.
	WriteTickFile(area string, date time.Time, contractID string, ticks []Tick) error

	// ReadTickFile loads a cold file. Returns (nil, nil) when absent.
	ReadTickFile(area string, date time.Time, contractID string) ([]Tick, error)

	// HasTickFile reports whether the cold file exists.
	HasTickFile(area string, date time.Time, contractID string) bool
}
