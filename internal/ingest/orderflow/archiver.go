// Package orderflow ingests the order revision stream for one delivery
// area. Two loops share the per-area checkpoint record: the archiver pulls
// complete historical order books day by day once a delivery day has
// settled, and the realtime streamer follows the live revision feed with a
// small overlap.
package orderflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nordpool-dataplane/internal/metrics"
	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/parse"
	"nordpool-dataplane/internal/upstream"
)

const (
	defaultArchiveDelay = 48 * time.Hour
	defaultHotRetention = 7 * 24 * time.Hour
	defaultWorkers      = 10
)

// Fetcher is the slice of the upstream client the archiver needs.
type Fetcher interface {
	ContractsByArea(ctx context.Context, area string, date time.Time) (*upstream.ContractListResponse, error)
	OrderBookByContractID(ctx context.Context, area, contractID string, date time.Time) (*upstream.OrderBookResponse, error)
}

// Store combines the persistence the archiver writes to.
type Store interface {
	model.TickWriter
	model.SnapshotWriter
	model.ContractStore
	model.StateStore
}

// ArchiverConfig tunes one area's historical archiver.
type ArchiverConfig struct {
	Area         string
	InitialStart time.Time     // first delivery day to archive on a fresh area
	ArchiveDelay time.Duration // a day is archivable once now >= day end + delay
	HotRetention time.Duration // days younger than this also land in the hot store
	Workers      int
	Now          func() time.Time
}

func (c *ArchiverConfig) withDefaults() {
	if c.ArchiveDelay <= 0 {
		c.ArchiveDelay = defaultArchiveDelay
	}
	if c.HotRetention <= 0 {
		c.HotRetention = defaultHotRetention
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Archiver walks settled delivery days and persists each contract's full
// order book: parquet in the cold tier, plus hot rows for recent days.
type Archiver struct {
	cfg     ArchiverConfig
	fetcher Fetcher
	store   Store
	cold    model.TickFileStore
	mx      *metrics.Metrics // nil-safe
}

func NewArchiver(cfg ArchiverConfig, f Fetcher, s Store, cold model.TickFileStore, mx *metrics.Metrics) *Archiver {
	cfg.withDefaults()
	return &Archiver{cfg: cfg, fetcher: f, store: s, cold: cold, mx: mx}
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Run archives every settled day past the checkpoint. The day pointer only
// advances when every contract of the day archived cleanly; a partial day
// is retried from its unarchived remainder on the next run.
func (a *Archiver) Run(ctx context.Context) error {
	area := a.cfg.Area
	st, err := a.store.GetOrderFlowSyncState(ctx, area)
	if err != nil {
		return fmt.Errorf("orderflow %s: load state: %w", area, err)
	}
	if st == nil {
		st = &model.OrderFlowSyncState{Area: area}
	}

	next := dayStart(a.cfg.InitialStart)
	if !st.LastArchivedTime.IsZero() {
		next = dayStart(st.LastArchivedTime).Add(24 * time.Hour)
	}

	now := a.cfg.Now().UTC()
	for !next.Add(24 * time.Hour).Add(a.cfg.ArchiveDelay).After(now) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failed, err := a.archiveDay(ctx, next, now)
		if err != nil {
			st.Status = model.StatusError
			st.LastError = err.Error()
			if serr := a.store.SaveOrderFlowSyncState(ctx, st); serr != nil {
				log.Printf("[orderflow] %s: save error state: %v", area, serr)
			}
			return fmt.Errorf("orderflow %s: day %s: %w", area, next.Format("2006-01-02"), err)
		}
		if failed > 0 {
			st.Status = model.StatusWarning
			st.LastError = fmt.Sprintf("day %s: %d contracts failed to archive", next.Format("2006-01-02"), failed)
			if serr := a.store.SaveOrderFlowSyncState(ctx, st); serr != nil {
				log.Printf("[orderflow] %s: save warning state: %v", area, serr)
			}
			return fmt.Errorf("orderflow %s: %s", area, st.LastError)
		}

		st.LastArchivedTime = next
		st.Status = model.StatusOK
		st.LastError = ""
		if err := a.store.SaveOrderFlowSyncState(ctx, st); err != nil {
			return fmt.Errorf("orderflow %s: save checkpoint: %w", area, err)
		}
		log.Printf("[orderflow] %s: archived day %s", area, next.Format("2006-01-02"))
		if a.mx != nil {
			a.mx.CheckpointLag.WithLabelValues(area, "archive").Set(now.Sub(next).Seconds())
		}
		next = next.Add(24 * time.Hour)
	}
	return nil
}

// archiveDay refreshes the day's contract list and archives all contracts
// not yet marked. Returns how many contracts failed; only a failure that
// prevents the whole day from proceeding is returned as an error.
func (a *Archiver) archiveDay(ctx context.Context, day, now time.Time) (int, error) {
	area := a.cfg.Area

	listing, err := a.fetcher.ContractsByArea(ctx, area, day)
	if err != nil {
		return 0, fmt.Errorf("contract list: %w", err)
	}
	contracts := parse.ContractEntries(area, listing)
	if err := a.store.UpsertContracts(ctx, contracts); err != nil {
		return 0, fmt.Errorf("upsert contracts: %w", err)
	}

	pending, err := a.store.UnarchivedContracts(ctx, area, day)
	if err != nil {
		return 0, fmt.Errorf("list unarchived: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	log.Printf("[orderflow] %s: day %s has %d contracts to archive",
		area, day.Format("2006-01-02"), len(pending))

	keepHot := now.Sub(day) <= a.cfg.HotRetention

	jobs := make(chan model.Contract)
	var wg sync.WaitGroup
	var failed int64

	for w := 0; w < a.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				if err := a.archiveContract(ctx, c, day, keepHot); err != nil {
					atomic.AddInt64(&failed, 1)
					log.Printf("[orderflow] %s: contract %s: %v", area, c.ContractID, err)
				}
			}
		}()
	}

	for _, c := range pending {
		select {
		case jobs <- c:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return int(atomic.LoadInt64(&failed)), ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	return int(atomic.LoadInt64(&failed)), nil
}

func (a *Archiver) archiveContract(ctx context.Context, c model.Contract, day time.Time, keepHot bool) error {
	book, err := a.fetcher.OrderBookByContractID(ctx, a.cfg.Area, c.ContractID, day)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	ticks, snaps := parse.NormalizeHistoricalBook(a.cfg.Area, c, book)

	if err := a.cold.WriteTickFile(a.cfg.Area, day, c.ContractID, ticks); err != nil {
		return fmt.Errorf("cold write: %w", err)
	}
	if a.mx != nil {
		a.mx.ColdFilesWritten.Inc()
	}

	if keepHot && len(ticks) > 0 {
		n, err := a.store.InsertTicks(ctx, ticks)
		if err != nil {
			return fmt.Errorf("hot insert: %w", err)
		}
		if a.mx != nil {
			a.mx.TicksInserted.WithLabelValues(model.SourceHistorical).Add(float64(n))
			a.mx.TicksDuplicate.Add(float64(int64(len(ticks)) - n))
		}
	}
	if len(snaps) > 0 {
		if err := a.store.InsertSnapshots(ctx, snaps); err != nil {
			return fmt.Errorf("store snapshots: %w", err)
		}
		if a.mx != nil {
			a.mx.SnapshotsStored.Add(float64(len(snaps)))
		}
	}

	if err := a.store.MarkContractArchived(ctx, c.ContractID, a.cfg.Area); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}
