// Package trades ingests executed trades for one delivery area. Each sync
// runs two phases: a backfill that walks the checkpoint forward in fixed
// chunks up to the safe line (now minus the settlement lag), and an active
// window refresh covering contracts still trading, which re-reads data
// without ever moving the checkpoint.
package trades

import (
	"context"
	"fmt"
	"log"
	"time"

	"nordpool-dataplane/internal/metrics"
	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/parse"
	"nordpool-dataplane/internal/upstream"
)

const (
	defaultSafeLag       = 2 * time.Hour
	defaultChunk         = 12 * time.Hour
	defaultActiveHorizon = 48 * time.Hour
)

// Fetcher is the slice of the upstream client this ingester needs.
type Fetcher interface {
	TradesByDeliveryStart(ctx context.Context, area string, from, to time.Time) (*upstream.TradesResponse, error)
}

// Store combines the persistence the ingester writes to.
type Store interface {
	model.TradeWriter
	model.StateStore
}

// Config tunes one area's ingester.
type Config struct {
	Area          string
	InitialStart  time.Time     // first delivery-start to backfill from on a fresh area
	SafeLag       time.Duration // deliveries older than now-SafeLag are final
	Chunk         time.Duration // backfill window size
	ActiveHorizon time.Duration // how far into the future the active window reaches
	Now           func() time.Time
}

func (c *Config) withDefaults() {
	if c.SafeLag <= 0 {
		c.SafeLag = defaultSafeLag
	}
	if c.Chunk <= 0 {
		c.Chunk = defaultChunk
	}
	if c.ActiveHorizon <= 0 {
		c.ActiveHorizon = defaultActiveHorizon
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Ingester syncs trades for one area.
type Ingester struct {
	cfg     Config
	fetcher Fetcher
	store   Store
	mx      *metrics.Metrics // nil-safe
}

func New(cfg Config, f Fetcher, s Store, mx *metrics.Metrics) *Ingester {
	cfg.withDefaults()
	return &Ingester{cfg: cfg, fetcher: f, store: s, mx: mx}
}

// Sync runs one full cycle. A backfill chunk failure aborts the run with
// status error; an active-window failure only degrades to warning since
// the checkpoint is intact and the next run re-reads the same window.
func (i *Ingester) Sync(ctx context.Context) error {
	area := i.cfg.Area
	st, err := i.store.GetTradeFetchState(ctx, area)
	if err != nil {
		return fmt.Errorf("trades %s: load state: %w", area, err)
	}
	if st == nil {
		st = &model.TradeFetchState{Area: area, LastFetchedTime: i.cfg.InitialStart.UTC()}
		log.Printf("[trades] %s: bootstrapping from %s", area, st.LastFetchedTime.Format(time.RFC3339))
	}

	now := i.cfg.Now().UTC()
	safeLine := now.Add(-i.cfg.SafeLag)

	st.Status = model.StatusRunning
	st.LastError = ""
	if err := i.store.SaveTradeFetchState(ctx, st); err != nil {
		return fmt.Errorf("trades %s: save state: %w", area, err)
	}

	if err := i.backfill(ctx, st, safeLine); err != nil {
		return err
	}

	if err := i.refreshActive(ctx, st, safeLine, now.Add(i.cfg.ActiveHorizon)); err != nil {
		return err
	}

	st.Status = model.StatusOK
	st.LastError = ""
	if err := i.store.SaveTradeFetchState(ctx, st); err != nil {
		return fmt.Errorf("trades %s: save state: %w", area, err)
	}
	i.observeLag(now, st.LastFetchedTime)
	return nil
}

// backfill walks [checkpoint, safeLine) in chunks, committing the
// checkpoint after every persisted chunk so a crash resumes at the last
// finished window.
func (i *Ingester) backfill(ctx context.Context, st *model.TradeFetchState, safeLine time.Time) error {
	area := i.cfg.Area
	cursor := st.LastFetchedTime

	for cursor.Before(safeLine) {
		end := cursor.Add(i.cfg.Chunk)
		if end.After(safeLine) {
			end = safeLine
		}

		if err := i.fetchAndStore(ctx, cursor, end); err != nil {
			st.Status = model.StatusError
			st.LastError = err.Error()
			if serr := i.store.SaveTradeFetchState(ctx, st); serr != nil {
				log.Printf("[trades] %s: save error state: %v", area, serr)
			}
			return fmt.Errorf("trades %s: backfill [%s, %s): %w",
				area, cursor.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}

		cursor = end
		st.LastFetchedTime = cursor
		if err := i.store.SaveTradeFetchState(ctx, st); err != nil {
			return fmt.Errorf("trades %s: save checkpoint: %w", area, err)
		}
		log.Printf("[trades] %s: backfilled to %s", area, cursor.Format(time.RFC3339))
	}
	return nil
}

// refreshActive re-reads the still-trading window in the same chunk size
// as the backfill. The checkpoint is not touched: rows here can mutate
// until their delivery passes the safe line.
func (i *Ingester) refreshActive(ctx context.Context, st *model.TradeFetchState, from, to time.Time) error {
	for cursor := from; cursor.Before(to); {
		end := cursor.Add(i.cfg.Chunk)
		if end.After(to) {
			end = to
		}
		if err := i.fetchAndStore(ctx, cursor, end); err != nil {
			st.Status = model.StatusWarning
			st.LastError = err.Error()
			if serr := i.store.SaveTradeFetchState(ctx, st); serr != nil {
				log.Printf("[trades] %s: save warning state: %v", i.cfg.Area, serr)
			}
			return fmt.Errorf("trades %s: active window [%s, %s): %w",
				i.cfg.Area, cursor.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}
		cursor = end
	}
	return nil
}

func (i *Ingester) fetchAndStore(ctx context.Context, from, to time.Time) error {
	resp, err := i.fetcher.TradesByDeliveryStart(ctx, i.cfg.Area, from, to)
	if err != nil {
		return err
	}
	trades := parse.FlattenTrades(resp, i.cfg.Area)
	if len(trades) == 0 {
		return nil
	}
	if err := i.store.UpsertTrades(ctx, trades); err != nil {
		return err
	}
	if i.mx != nil {
		i.mx.TradesUpserted.Add(float64(len(trades)))
	}
	return nil
}

func (i *Ingester) observeLag(now, checkpoint time.Time) {
	if i.mx == nil || checkpoint.IsZero() {
		return
	}
	i.mx.CheckpointLag.WithLabelValues(i.cfg.Area, "trades").Set(now.Sub(checkpoint).Seconds())
}
