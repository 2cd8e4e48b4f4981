package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"nordpool-dataplane/internal/model"
)

const candleColumns = `contract_id, area, ts, contract_type,
	open::text, high::text, low::text, close::text, volume::text, vwap::text, trade_count`

// UpsertCandles writes derived candles; re-derivation replaces every derived
// field so a bucket is always the latest aggregation of its trades.
func (s *Store) UpsertCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(`
			INSERT INTO candles_1m (
				contract_id, area, ts, contract_type,
				open, high, low, close, volume, vwap, trade_count
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (contract_id, area, ts) DO UPDATE SET
				contract_type = EXCLUDED.contract_type,
				open          = EXCLUDED.open,
				high          = EXCLUDED.high,
				low           = EXCLUDED.low,
				close         = EXCLUDED.close,
				volume        = EXCLUDED.volume,
				vwap          = EXCLUDED.vwap,
				trade_count   = EXCLUDED.trade_count
		`, c.ContractID, c.Area, c.TS.UTC(), string(c.ContractType),
			dec(c.Open), dec(c.High), dec(c.Low), dec(c.Close),
			dec(c.Volume), dec(c.VWAP), c.TradeCount)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pg upsert candles: %w", err)
		}
	}
	return nil
}

func (s *Store) queryCandles(ctx context.Context, sql string, args ...any) ([]model.Candle, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pg query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var (
			c                  model.Candle
			ctype              string
			o, h, l, cl, v, vw string
		)
		if err := rows.Scan(&c.ContractID, &c.Area, &c.TS, &ctype,
			&o, &h, &l, &cl, &v, &vw, &c.TradeCount); err != nil {
			return nil, fmt.Errorf("pg scan candle: %w", err)
		}
		c.ContractType = model.ContractType(ctype)
		c.Open, c.High, c.Low, c.Close = parseDec(o), parseDec(h), parseDec(l), parseDec(cl)
		c.Volume, c.VWAP = parseDec(v), parseDec(vw)
		c.TS = c.TS.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// CandlesForContract returns the full minute series for one contract.
func (s *Store) CandlesForContract(ctx context.Context, area, contractID string) ([]model.Candle, error) {
	return s.queryCandles(ctx, `
		SELECT `+candleColumns+`
		FROM candles_1m
		WHERE area = $1 AND contract_id = $2
		ORDER BY ts ASC
	`, area, contractID)
}

// RecentCandles returns the newest n candles for an area, oldest first.
func (s *Store) RecentCandles(ctx context.Context, area string, n int) ([]model.Candle, error) {
	return s.queryCandles(ctx, `
		SELECT * FROM (
			SELECT `+candleColumns+`
			FROM candles_1m
			WHERE area = $1
			ORDER BY ts DESC
			LIMIT $2
		) latest ORDER BY ts ASC
	`, area, n)
}
