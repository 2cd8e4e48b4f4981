// Package replay reconstructs order books from the stored tick log. The
// book at any instant is a pure fold over the contract's ticks in
// (updated_time, revision_number) order, so the same log always produces
// the same book.
package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"nordpool-dataplane/internal/model"
)

// liveOrder is one resting order while folding.
type liveOrder struct {
	tick model.Tick
}

// BookAt folds ticks with updated_time <= at into a synthesized snapshot.
// Ticks may arrive unsorted; they are ordered before folding. An order
// leaves the book on a CANCEL, a delete flag or an exhausted remaining
// volume; otherwise the tick's remaining volume replaces the order's
// resting quantity.
func BookAt(contractID, area string, ticks []model.Tick, at time.Time) model.BookSnapshot {
	sorted := make([]model.Tick, 0, len(ticks))
	for _, t := range ticks {
		if t.UpdatedTime.After(at) {
			continue
		}
		sorted = append(sorted, t)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].UpdatedTime.Equal(sorted[j].UpdatedTime) {
			return sorted[i].UpdatedTime.Before(sorted[j].UpdatedTime)
		}
		return sorted[i].RevisionNumber < sorted[j].RevisionNumber
	})

	active := map[string]liveOrder{}
	var meta model.Tick
	for _, t := range sorted {
		if meta.ContractName == "" && t.ContractName != "" {
			meta = t
		}
		if t.IsDeleted || t.Type == model.TickCancel || t.RemainingVolume.Sign() <= 0 {
			delete(active, t.OrderID)
			continue
		}
		active[t.OrderID] = liveOrder{tick: t}
	}

	var bids, asks []model.BookLevel
	for _, o := range active {
		t := o.tick
		priority := t.PriorityTime
		if priority.IsZero() {
			priority = t.UpdatedTime
		}
		level := model.BookLevel{
			OrderID:      t.OrderID,
			Price:        t.Price,
			Volume:       t.RemainingVolume,
			PriorityTime: priority,
		}
		switch t.Side {
		case model.SideBuy:
			bids = append(bids, level)
		case model.SideSell:
			asks = append(asks, level)
		}
	}

	sortBids(bids)
	sortAsks(asks)

	return model.BookSnapshot{
		SnapshotID:    uuid.NewString(),
		ContractID:    contractID,
		ContractName:  meta.ContractName,
		DeliveryArea:  area,
		DeliveryStart: meta.DeliveryStart,
		DeliveryEnd:   meta.DeliveryEnd,
		Timestamp:     at,
		Bids:          bids,
		Asks:          asks,
		IsNative:      false,
	}
}

func sortBids(levels []model.BookLevel) {
	sort.Slice(levels, func(i, j int) bool {
		if !levels[i].Price.Equal(levels[j].Price) {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].PriorityTime.Before(levels[j].PriorityTime)
	})
}

func sortAsks(levels []model.BookLevel) {
	sort.Slice(levels, func(i, j int) bool {
		if !levels[i].Price.Equal(levels[j].Price) {
			return levels[i].Price.LessThan(levels[j].Price)
		}
		return levels[i].PriorityTime.Before(levels[j].PriorityTime)
	})
}

// Service replays books from the hot tick store.
type Service struct {
	ticks model.TickReader
}

func NewService(ticks model.TickReader) *Service {
	return &Service{ticks: ticks}
}

// SnapshotAt reconstructs a contract's book as of the given instant.
func (s *Service) SnapshotAt(ctx context.Context, contractID, area string, at time.Time) (model.BookSnapshot, error) {
	ticks, err := s.ticks.TicksForContract(ctx, contractID, at)
	if err != nil {
		return model.BookSnapshot{}, fmt.Errorf("replay %s: read ticks: %w", contractID, err)
	}
	return BookAt(contractID, area, ticks, at), nil
}

// Series reconstructs the book at fixed steps across [from, to], reusing
// one tick read for the whole range.
func (s *Service) Series(ctx context.Context, contractID, area string, from, to time.Time, step time.Duration) ([]model.BookSnapshot, error) {
	if step <= 0 {
		return nil, fmt.Errorf("replay %s: non-positive step", contractID)
	}
	ticks, err := s.ticks.TicksForContract(ctx, contractID, to)
	if err != nil {
		return nil, fmt.Errorf("replay %s: read ticks: %w", contractID, err)
	}
	var out []model.BookSnapshot
	for at := from; !at.After(to); at = at.Add(step) {
		out = append(out, BookAt(contractID, area, ticks, at))
	}
	return out, nil
}
