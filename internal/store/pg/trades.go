package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"nordpool-dataplane/internal/model"
)

const tradeColumns = `trade_id, delivery_area, trade_side, contract_id, contract_name,
	delivery_start, delivery_end, duration_minutes, contract_type,
	price::text, volume::text, trade_time, trade_updated_at, state,
	revision_number, phase, cross_exchange, reference_order_id`

// UpsertTrades inserts trade legs; on conflict only the fields the exchange
// mutates after the fact (revision, state, price, volume, updated_at) are
// replaced, everything else keeps its first-seen value.
func (s *Store) UpsertTrades(ctx context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO trades (
				trade_id, delivery_area, trade_side, contract_id, contract_name,
				delivery_start, delivery_end, duration_minutes, contract_type,
				price, volume, trade_time, trade_updated_at, state,
				revision_number, phase, cross_exchange, reference_order_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (trade_id, delivery_area, trade_side) DO UPDATE SET
				trade_updated_at = EXCLUDED.trade_updated_at,
				state            = EXCLUDED.state,
				revision_number  = EXCLUDED.revision_number,
				price            = EXCLUDED.price,
				volume           = EXCLUDED.volume
		`, t.TradeID, t.DeliveryArea, t.TradeSide, t.ContractID, t.ContractName,
			t.DeliveryStart.UTC(), t.DeliveryEnd.UTC(), t.DurationMinutes, string(t.ContractType),
			dec(t.Price), dec(t.Volume), t.TradeTime.UTC(), nullTime(t.TradeUpdatedAt), t.State,
			t.RevisionNumber, t.Phase, t.CrossExchange, t.ReferenceOrderID)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pg upsert trades: %w", err)
		}
	}
	return nil
}

func scanTrade(rows pgx.Rows) (model.Trade, error) {
	var (
		t             model.Trade
		ctype         string
		price, volume string
		updatedAt     *time.Time
	)
	err := rows.Scan(&t.TradeID, &t.DeliveryArea, &t.TradeSide, &t.ContractID, &t.ContractName,
		&t.DeliveryStart, &t.DeliveryEnd, &t.DurationMinutes, &ctype,
		&price, &volume, &t.TradeTime, &updatedAt, &t.State,
		&t.RevisionNumber, &t.Phase, &t.CrossExchange, &t.ReferenceOrderID)
	if err != nil {
		return t, err
	}
	t.ContractType = model.ContractType(ctype)
	t.Price = parseDec(price)
	t.Volume = parseDec(volume)
	t.TradeUpdatedAt = fromNullTime(updatedAt)
	t.DeliveryStart = t.DeliveryStart.UTC()
	t.DeliveryEnd = t.DeliveryEnd.UTC()
	t.TradeTime = t.TradeTime.UTC()
	return t, nil
}

func (s *Store) queryTrades(ctx context.Context, sql string, args ...any) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pg query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("pg scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradesInWindow returns trades with trade_time in [from, to).
func (s *Store) TradesInWindow(ctx context.Context, area string, from, to time.Time) ([]model.Trade, error) {
	return s.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE delivery_area = $1 AND trade_time >= $2 AND trade_time < $3
		ORDER BY trade_time ASC
	`, area, from.UTC(), to.UTC())
}

// TradesForContract returns all legs of a contract in an area.
func (s *Store) TradesForContract(ctx context.Context, area, contractID string) ([]model.Trade, error) {
	return s.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE delivery_area = $1 AND contract_id = $2
		ORDER BY trade_time ASC
	`, area, contractID)
}

// TradedContractsOnDate returns one representative row per contract whose
// delivery starts on the given UTC date.
func (s *Store) TradedContractsOnDate(ctx context.Context, area string, date time.Time) ([]model.Trade, error) {
	day := time.Date(date.UTC().Year(), date.UTC().Month(), date.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return s.queryTrades(ctx, `
		SELECT DISTINCT ON (contract_id) `+tradeColumns+`
		FROM trades
		WHERE delivery_area = $1 AND delivery_start >= $2 AND delivery_start < $3
		ORDER BY contract_id, trade_time ASC
	`, area, day, day.Add(24*time.Hour))
}

// TradeSpan reports the stored trade_time range and row count for an area.
func (s *Store) TradeSpan(ctx context.Context, area string) (time.Time, time.Time, int64, error) {
	var (
		min, max *time.Time
		count    int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(trade_time), MAX(trade_time), COUNT(*)
		FROM trades WHERE delivery_area = $1
	`, area).Scan(&min, &max, &count)
	if err != nil {
		return time.Time{}, time.Time{}, 0, fmt.Errorf("pg trade span: %w", err)
	}
	return fromNullTime(min), fromNullTime(max), count, nil
}
