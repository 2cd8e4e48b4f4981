package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"nordpool-dataplane/internal/model"
)

// maxErrorLen caps stored error text so a huge upstream body cannot bloat
// the checkpoint row.
const maxErrorLen = 500

func truncErr(s string) string {
	if len(s) > maxErrorLen {
		return s[:maxErrorLen]
	}
	return s
}

// GetTradeFetchState returns the trade checkpoint, or (nil, nil) when the
// area has never been synced.
func (s *Store) GetTradeFetchState(ctx context.Context, area string) (*model.TradeFetchState, error) {
	var st model.TradeFetchState
	err := s.pool.QueryRow(ctx, `
		SELECT area, last_fetched_time, status, last_error, updated_at
		FROM trade_fetch_state WHERE area = $1
	`, area).Scan(&st.Area, &st.LastFetchedTime, &st.Status, &st.LastError, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg get trade state: %w", err)
	}
	st.LastFetchedTime = st.LastFetchedTime.UTC()
	return &st, nil
}

func (s *Store) SaveTradeFetchState(ctx context.Context, st *model.TradeFetchState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_fetch_state (area, last_fetched_time, status, last_error, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (area) DO UPDATE SET
			last_fetched_time = EXCLUDED.last_fetched_time,
			status            = EXCLUDED.status,
			last_error        = EXCLUDED.last_error,
			updated_at        = EXCLUDED.updated_at
	`, st.Area, st.LastFetchedTime.UTC(), st.Status, truncErr(st.LastError), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pg save trade state: %w", err)
	}
	return nil
}

func (s *Store) GetCandleGenState(ctx context.Context, area string) (*model.CandleGenState, error) {
	var st model.CandleGenState
	err := s.pool.QueryRow(ctx, `
		SELECT area, last_generated_time, updated_at
		FROM candle_gen_state WHERE area = $1
	`, area).Scan(&st.Area, &st.LastGeneratedTime, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg get candle state: %w", err)
	}
	st.LastGeneratedTime = st.LastGeneratedTime.UTC()
	return &st, nil
}

func (s *Store) SaveCandleGenState(ctx context.Context, st *model.CandleGenState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO candle_gen_state (area, last_generated_time, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (area) DO UPDATE SET
			last_generated_time = EXCLUDED.last_generated_time,
			updated_at          = EXCLUDED.updated_at
	`, st.Area, st.LastGeneratedTime.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pg save candle state: %w", err)
	}
	return nil
}

func (s *Store) GetOrderFlowSyncState(ctx context.Context, area string) (*model.OrderFlowSyncState, error) {
	var st model.OrderFlowSyncState
	err := s.pool.QueryRow(ctx, `
		SELECT area, last_archived_time, last_realtime_time, status, last_error, updated_at
		FROM order_flow_sync_state WHERE area = $1
	`, area).Scan(&st.Area, &st.LastArchivedTime, &st.LastRealtimeTime,
		&st.Status, &st.LastError, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg get orderflow state: %w", err)
	}
	st.LastArchivedTime = st.LastArchivedTime.UTC()
	st.LastRealtimeTime = st.LastRealtimeTime.UTC()
	return &st, nil
}

func (s *Store) SaveOrderFlowSyncState(ctx context.Context, st *model.OrderFlowSyncState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_flow_sync_state (area, last_archived_time, last_realtime_time, status, last_error, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (area) DO UPDATE SET
			last_archived_time = EXCLUDED.last_archived_time,
			last_realtime_time = EXCLUDED.last_realtime_time,
			status             = EXCLUDED.status,
			last_error         = EXCLUDED.last_error,
			updated_at         = EXCLUDED.updated_at
	`, st.Area, st.LastArchivedTime.UTC(), st.LastRealtimeTime.UTC(),
		st.Status, truncErr(st.LastError), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pg save orderflow state: %w", err)
	}
	return nil
}
