// Package candles derives 1-minute OHLCV series from stored trades. The
// pipeline is gated by the trade ingester's checkpoint: it only aggregates
// minutes whose trades are final, so a candle is never derived from a
// partially fetched window.
package candles

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/metrics"
	"nordpool-dataplane/internal/model"
)

const defaultChunk = 6 * time.Hour

// Store combines the persistence the pipeline reads and writes.
type Store interface {
	model.TradeReader
	model.CandleWriter
	model.StateStore
}

// Config tunes one area's candle pipeline.
type Config struct {
	Area         string
	InitialStart time.Time     // first minute to derive on a fresh area
	Chunk        time.Duration // derivation window size
	Now          func() time.Time
}

func (c *Config) withDefaults() {
	if c.Chunk <= 0 {
		c.Chunk = defaultChunk
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Pipeline derives candles for one area.
type Pipeline struct {
	cfg   Config
	store Store
	mx    *metrics.Metrics // nil-safe
}

func New(cfg Config, s Store, mx *metrics.Metrics) *Pipeline {
	cfg.withDefaults()
	return &Pipeline{cfg: cfg, store: s, mx: mx}
}

// Generate aggregates all complete chunks up to the safe end, which is the
// earlier of wall clock and the trade checkpoint. The candle checkpoint
// advances for every processed chunk whether or not it produced rows: an
// empty market minute is a decided fact, not missing data.
func (p *Pipeline) Generate(ctx context.Context) error {
	area := p.cfg.Area

	tradeSt, err := p.store.GetTradeFetchState(ctx, area)
	if err != nil {
		return fmt.Errorf("candles %s: load trade state: %w", area, err)
	}
	if tradeSt == nil || tradeSt.LastFetchedTime.IsZero() {
		log.Printf("[candles] %s: no trade checkpoint yet, skipping", area)
		return nil
	}

	st, err := p.store.GetCandleGenState(ctx, area)
	if err != nil {
		return fmt.Errorf("candles %s: load state: %w", area, err)
	}
	if st == nil {
		st = &model.CandleGenState{Area: area, LastGeneratedTime: p.cfg.InitialStart.UTC()}
	}

	now := p.cfg.Now().UTC()
	safeEnd := tradeSt.LastFetchedTime
	if now.Before(safeEnd) {
		safeEnd = now
	}
	safeEnd = safeEnd.Truncate(time.Minute)

	cursor := st.LastGeneratedTime
	for cursor.Before(safeEnd) {
		end := cursor.Add(p.cfg.Chunk)
		if end.After(safeEnd) {
			end = safeEnd
		}

		trades, err := p.store.TradesInWindow(ctx, area, cursor, end)
		if err != nil {
			return fmt.Errorf("candles %s: read trades [%s, %s): %w",
				area, cursor.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}

		out := Aggregate(area, trades)
		if len(out) > 0 {
			if err := p.store.UpsertCandles(ctx, out); err != nil {
				return fmt.Errorf("candles %s: upsert: %w", area, err)
			}
			if p.mx != nil {
				p.mx.CandlesWritten.Add(float64(len(out)))
			}
		}

		cursor = end
		st.LastGeneratedTime = cursor
		if err := p.store.SaveCandleGenState(ctx, st); err != nil {
			return fmt.Errorf("candles %s: save checkpoint: %w", area, err)
		}
		log.Printf("[candles] %s: derived to %s (%d candles)", area, cursor.Format(time.RFC3339), len(out))
	}

	if p.mx != nil {
		p.mx.CheckpointLag.WithLabelValues(area, "candles").Set(now.Sub(st.LastGeneratedTime).Seconds())
	}
	return nil
}

// Aggregate buckets trades into 1-minute candles per contract. Cancelled
// trades are excluded. Every stored row counts: a trade with both legs in
// the area contributes each leg's volume. Exact decimal arithmetic end to
// end.
func Aggregate(area string, trades []model.Trade) []model.Candle {
	type bucketKey struct {
		contractID string
		minute     time.Time
	}
	type bucket struct {
		candle model.Candle
		pv     decimal.Decimal // sum(price*volume) for vwap
	}

	buckets := map[bucketKey]*bucket{}
	var order []bucketKey

	for _, t := range trades {
		if t.State == "Cancelled" {
			continue
		}
		key := bucketKey{t.ContractID, t.TradeTime.UTC().Truncate(time.Minute)}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				candle: model.Candle{
					ContractID:   t.ContractID,
					TS:           key.minute,
					Area:         area,
					ContractType: t.ContractType,
					Open:         t.Price,
					High:         t.Price,
					Low:          t.Price,
					Close:        t.Price,
				},
			}
			buckets[key] = b
			order = append(order, key)
		}

		if t.Price.GreaterThan(b.candle.High) {
			b.candle.High = t.Price
		}
		if t.Price.LessThan(b.candle.Low) {
			b.candle.Low = t.Price
		}
		b.candle.Close = t.Price

		b.candle.Volume = b.candle.Volume.Add(t.Volume)
		b.pv = b.pv.Add(t.Price.Mul(t.Volume))
		b.candle.TradeCount++
	}

	out := make([]model.Candle, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		if b.candle.Volume.Sign() > 0 {
			b.candle.VWAP = b.pv.Div(b.candle.Volume).Round(6)
		} else {
			b.candle.VWAP = b.candle.Close
		}
		out = append(out, b.candle)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TS.Equal(out[j].TS) {
			return out[i].TS.Before(out[j].TS)
		}
		return out[i].ContractID < out[j].ContractID
	})
	return out
}
