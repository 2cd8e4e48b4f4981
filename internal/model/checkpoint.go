package model

import "time"

// Checkpoint statuses shared by the three sync state records.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// TradeFetchState is the trade ingester's checkpoint for one area.
// LastFetchedTime advances only through the backfill phase; active-window
// refreshes never move it.
type TradeFetchState struct {
	Area            string    `json:"area"`
	LastFetchedTime time.Time `json:"last_fetched_time"`
	Status          string    `json:"status"`
	LastError       string    `json:"last_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CandleGenState is the candle pipeline's checkpoint for one area.
// Minutes at or before LastGeneratedTime have been considered, whether or
// not any candle was emitted for them.
type CandleGenState struct {
	Area              string    `json:"area"`
	LastGeneratedTime time.Time `json:"last_generated_time"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// OrderFlowSyncState tracks the order-flow ingester's two cursors for one
// area: historical archival progress (day granularity) and the realtime
// revision-stream high-water mark.
type OrderFlowSyncState struct {
	Area             string    `json:"area"`
	LastArchivedTime time.Time `json:"last_archived_time"`
	LastRealtimeTime time.Time `json:"last_realtime_time"`
	Status           string    `json:"status"`
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}
