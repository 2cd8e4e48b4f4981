package orderflow

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
	defaultOverlap     = time.Minute
	defaultMaxLookback = 48 * time.Hour

	// A cursor ahead of wall clock means the stored state is corrupt
	// (clock skew, bad restore). Fall back far enough to re-cover the
	// settlement lag rather than just the overlap.
	futureResetLag = 2 * time.Hour
)

// RevisionStreamer is the slice of the upstream client the realtime loop needs.
type RevisionStreamer interface {
	OrderRevisionsByUpdatedTime(ctx context.Context, area string, from, to time.Time) <-chan upstream.RevisionSlice
}

// Publisher fans fresh ticks into the low-latency cache. May be absent.
type Publisher interface {
	PublishTicks(area string, ticks []model.Tick) error
}

// StreamerConfig tunes one area's realtime revision follower.
type StreamerConfig struct {
	Area        string
	Overlap     time.Duration // re-read window to absorb late revisions
	MaxLookback time.Duration // never reach further back than now minus this
	Now         func() time.Time
}

func (c *StreamerConfig) withDefaults() {
	if c.Overlap <= 0 {
		c.Overlap = defaultOverlap
	}
	if c.MaxLookback <= 0 {
		c.MaxLookback = defaultMaxLookback
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Streamer follows the live revision feed and advances the realtime
// high-water mark only over contiguously ingested slices.
type Streamer struct {
	cfg    StreamerConfig
	stream RevisionStreamer
	store  Store
	pub    Publisher        // nil when the tick cache is disabled
	mx     *metrics.Metrics // nil-safe
}

func NewStreamer(cfg StreamerConfig, rs RevisionStreamer, s Store, pub Publisher, mx *metrics.Metrics) *Streamer {
	cfg.withDefaults()
	return &Streamer{cfg: cfg, stream: rs, store: s, pub: pub, mx: mx}
}

// Sync pulls [checkpoint-overlap, now) and persists each slice. The
// checkpoint advances slice by slice while progress stays contiguous; a
// skipped upstream slice freezes it so the gap is re-read next run, while
// later slices are still ingested (the deterministic tick ids make that
// overlap harmless).
func (s *Streamer) Sync(ctx context.Context) error {
	area := s.cfg.Area
	st, err := s.store.GetOrderFlowSyncState(ctx, area)
	if err != nil {
		return fmt.Errorf("orderflow %s: load state: %w", area, err)
	}
	if st == nil {
		st = &model.OrderFlowSyncState{Area: area}
	}

	now := s.cfg.Now().UTC()
	from := st.LastRealtimeTime.Add(-s.cfg.Overlap)
	if st.LastRealtimeTime.IsZero() || from.Before(now.Add(-s.cfg.MaxLookback)) {
		from = now.Add(-s.cfg.MaxLookback)
		log.Printf("[orderflow] %s: realtime cursor reset to %s", area, from.Format(time.RFC3339))
	}
	if from.After(now) {
		from = now.Add(-futureResetLag)
		log.Printf("[orderflow] %s: realtime cursor was in the future, reset to %s", area, from.Format(time.RFC3339))
	}
	if !from.Before(now) {
		return nil
	}

	highWater := from
	contiguous := true
	var gap bool

	for slice := range s.stream.OrderRevisionsByUpdatedTime(ctx, area, from, now) {
		if slice.From.After(highWater) {
			// A slice before this one was skipped upstream.
			contiguous = false
			gap = true
		}

		ticks := parse.NormalizeRevisions(area, slice.Data)
		if len(ticks) > 0 {
			n, err := s.store.InsertTicks(ctx, ticks)
			if err != nil {
				st.Status = model.StatusError
				st.LastError = err.Error()
				if !highWater.Equal(from) {
					st.LastRealtimeTime = highWater
				}
				if serr := s.store.SaveOrderFlowSyncState(ctx, st); serr != nil {
					log.Printf("[orderflow] %s: save error state: %v", area, serr)
				}
				return fmt.Errorf("orderflow %s: insert slice [%s, %s): %w",
					area, slice.From.Format(time.RFC3339), slice.To.Format(time.RFC3339), err)
			}
			if s.mx != nil {
				s.mx.TicksInserted.WithLabelValues(model.SourceRealtime).Add(float64(n))
				s.mx.TicksDuplicate.Add(float64(int64(len(ticks)) - n))
			}
			if s.pub != nil {
				if err := s.pub.PublishTicks(area, ticks); err != nil {
					log.Printf("[orderflow] %s: tick cache publish: %v", area, err)
				}
			}
		}

		if contiguous {
			highWater = slice.To
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if highWater.After(st.LastRealtimeTime) {
		st.LastRealtimeTime = highWater
	}
	if gap {
		st.Status = model.StatusWarning
		st.LastError = "revision stream had skipped slices; window will be re-read"
	} else {
		st.Status = model.StatusOK
		st.LastError = ""
	}
	if err := s.store.SaveOrderFlowSyncState(ctx, st); err != nil {
		return fmt.Errorf("orderflow %s: save state: %w", area, err)
	}
	if s.mx != nil {
		s.mx.CheckpointLag.WithLabelValues(area, "realtime").Set(now.Sub(st.LastRealtimeTime).Seconds())
	}
	return nil
}
