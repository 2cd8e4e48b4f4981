package parse

import (
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/upstream"
)

// aggressorThreshold separates taker orders from resting ones: an order
// that trades within 200ms of its creation crossed the spread itself.
const aggressorThreshold = 200 * time.Millisecond

// mapAction folds the upstream action vocabulary onto canonical tick types.
// Unknown actions return "" and the revision is skipped.
func mapAction(action string) model.TickType {
	switch action {
	case "PartialExecution", "FullExecution":
		return model.TickTrade
	case "UserAdded":
		return model.TickNew
	case "UserDeleted", "SystemDeleted", "UserHibernated", "SystemHibernated":
		return model.TickCancel
	case "UserModified", "SystemModified":
		return model.TickUpdate
	default:
		return ""
	}
}

// NormalizeRevisions converts a realtime revision payload (per-order
// grouping) into canonical ticks. Per order, revisions are walked in
// revision_number order while tracking the running remaining volume, so
// each TRADE/CANCEL/UPDATE carries the recovered delta volume.
func NormalizeRevisions(area string, raw *upstream.RevisionsResponse) []model.Tick {
	if raw == nil {
		return nil
	}
	var out []model.Tick

	for _, contract := range raw.Contracts {
		deliveryStart, _ := parseTime(contract.DeliveryStart)
		deliveryEnd, _ := parseTime(contract.DeliveryEnd)

		for _, order := range contract.Orders {
			side := strings.ToUpper(order.Side)
			createdTime, hasCreated := parseTime(order.CreatedTime)

			revs := make([]upstream.RawRevision, len(order.Revisions))
			copy(revs, order.Revisions)
			sort.Slice(revs, func(i, j int) bool {
				return revs[i].RevisionNumber < revs[j].RevisionNumber
			})

			// Remaining volume before the current revision; unknown until
			// the first revision we can anchor on.
			var lastRemaining *decimal.Decimal

			for _, rev := range revs {
				tickType := mapAction(rev.Action)
				if tickType == "" {
					continue
				}
				updated, ok := parseTime(rev.UpdatedTime)
				if !ok {
					log.Printf("[parse] order %s rev %d: bad updatedTime %q, skipped",
						order.OrderID, rev.RevisionNumber, rev.UpdatedTime)
					continue
				}
				priority, _ := parseTime(rev.PriorityTime)

				remaining := rev.Volume
				var delta decimal.Decimal

				switch tickType {
				case model.TickNew:
					delta = remaining
					r := remaining
					lastRemaining = &r
				default: // TRADE, CANCEL, UPDATE
					if lastRemaining != nil {
						d := lastRemaining.Sub(remaining)
						if d.Sign() > 0 {
							delta = d
						}
					}
					r := remaining
					lastRemaining = &r
				}

				aggressor := model.SideNone
				if tickType == model.TickTrade && hasCreated {
					if updated.Sub(createdTime) < aggressorThreshold {
						aggressor = side // marketable order, it took
					} else if side == model.SideBuy {
						aggressor = model.SideSell
					} else {
						aggressor = model.SideBuy
					}
				}

				out = append(out, model.Tick{
					TickID: model.TickID(contract.ContractID, area,
						rev.RevisionNumber, order.OrderID, updated, string(tickType)),
					ContractID:      contract.ContractID,
					ContractName:    contract.ContractName,
					DeliveryArea:    area,
					DeliveryStart:   deliveryStart,
					DeliveryEnd:     deliveryEnd,
					OrderID:         order.OrderID,
					Side:            side,
					Price:           rev.Price,
					Volume:          delta,
					RemainingVolume: remaining,
					UpdatedTime:     updated,
					PriorityTime:    priority,
					Type:            tickType,
					RawAction:       rev.Action,
					AggressorSide:   aggressor,
					RevisionNumber:  rev.RevisionNumber,
					IsDeleted:       strings.Contains(rev.Action, "Deleted"),
					Source:          model.SourceRealtime,
				})
			}
		}
	}
	return out
}

// NormalizeHistoricalBook converts a full order book payload (per-revision
// grouping) into ticks and native snapshots. Snapshot revisions become
// BookSnapshots; ordinary revisions become one tick per order row, typed
// UPDATE or CANCEL (the historical endpoint does not distinguish NEW from
// MODIFY).
func NormalizeHistoricalBook(area string, meta model.Contract, raw *upstream.OrderBookResponse) ([]model.Tick, []model.BookSnapshot) {
	if raw == nil {
		return nil, nil
	}
	contractID := raw.ContractID
	if contractID == "" {
		contractID = meta.ContractID
	}
	if raw.DeliveryArea != "" {
		area = raw.DeliveryArea
	}
	rootUpdated, _ := parseTime(raw.UpdatedAt)

	var ticks []model.Tick
	var snaps []model.BookSnapshot

	for _, rev := range raw.Revisions {
		if rev.IsSnapshot {
			if snap, ok := buildSnapshot(contractID, area, meta, rev); ok {
				snaps = append(snaps, snap)
			}
			continue
		}
		ticks = append(ticks, bookRowTicks(contractID, area, meta, rev, model.SideBuy, rev.BuyOrders, rootUpdated)...)
		ticks = append(ticks, bookRowTicks(contractID, area, meta, rev, model.SideSell, rev.SellOrders, rootUpdated)...)
	}
	return ticks, snaps
}

func bookRowTicks(contractID, area string, meta model.Contract, rev upstream.BookRevision,
	side string, rows []upstream.BookOrderRow, rootUpdated time.Time) []model.Tick {

	out := make([]model.Tick, 0, len(rows))
	for _, row := range rows {
		updated, ok := parseTime(row.UpdatedTime)
		if !ok {
			log.Printf("[parse] book %s rev %d: bad updatedTime %q, skipped",
				contractID, rev.Revision, row.UpdatedTime)
			continue
		}
		priority, _ := parseTime(row.PriorityTime)

		tickType := model.TickUpdate
		if row.Deleted || row.Volume.Sign() <= 0 {
			tickType = model.TickCancel
		}

		out = append(out, model.Tick{
			TickID: model.TickID(contractID, area,
				rev.Revision, row.OrderID, updated, string(tickType)),
			ContractID:      contractID,
			ContractName:    meta.ContractName,
			DeliveryArea:    area,
			DeliveryStart:   meta.DeliveryStart,
			DeliveryEnd:     meta.DeliveryEnd,
			OrderID:         row.OrderID,
			Side:            side,
			Price:           row.Price,
			Volume:          row.Volume,
			RemainingVolume: row.Volume,
			UpdatedTime:     updated,
			PriorityTime:    priority,
			Type:            tickType,
			AggressorSide:   model.SideNone,
			RevisionNumber:  rev.Revision,
			IsDeleted:       row.Deleted,
			RootUpdatedAt:   rootUpdated,
			Source:          model.SourceHistorical,
		})
	}
	return out
}

func buildSnapshot(contractID, area string, meta model.Contract, rev upstream.BookRevision) (model.BookSnapshot, bool) {
	ts, ok := parseTime(rev.UpdatedAt)
	if !ok && len(rev.BuyOrders) > 0 {
		ts, ok = parseTime(rev.BuyOrders[0].UpdatedTime)
	}
	if !ok && len(rev.SellOrders) > 0 {
		ts, ok = parseTime(rev.SellOrders[0].UpdatedTime)
	}
	if !ok {
		log.Printf("[parse] book %s snapshot rev %d: no usable timestamp, skipped",
			contractID, rev.Revision)
		return model.BookSnapshot{}, false
	}

	bids := snapshotLevels(rev.BuyOrders)
	asks := snapshotLevels(rev.SellOrders)

	// Bids: best (highest) price first; asks: best (lowest) price first.
	// Priority time breaks ties on both sides.
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].Price.Equal(bids[j].Price) {
			return bids[i].Price.GreaterThan(bids[j].Price)
		}
		return bids[i].PriorityTime.Before(bids[j].PriorityTime)
	})
	sort.Slice(asks, func(i, j int) bool {
		if !asks[i].Price.Equal(asks[j].Price) {
			return asks[i].Price.LessThan(asks[j].Price)
		}
		return asks[i].PriorityTime.Before(asks[j].PriorityTime)
	})

	return model.BookSnapshot{
		SnapshotID:     uuid.NewString(),
		ContractID:     contractID,
		ContractName:   meta.ContractName,
		DeliveryArea:   area,
		DeliveryStart:  meta.DeliveryStart,
		DeliveryEnd:    meta.DeliveryEnd,
		Timestamp:      ts,
		RevisionNumber: rev.Revision,
		Bids:           bids,
		Asks:           asks,
		IsNative:       true,
	}, true
}

func snapshotLevels(rows []upstream.BookOrderRow) []model.BookLevel {
	out := make([]model.BookLevel, 0, len(rows))
	for _, row := range rows {
		if row.Deleted {
			continue
		}
		priority, ok := parseTime(row.PriorityTime)
		if !ok {
			priority, _ = parseTime(row.UpdatedTime)
		}
		out = append(out, model.BookLevel{
			OrderID:      row.OrderID,
			Price:        row.Price,
			Volume:       row.Volume,
			PriorityTime: priority,
		})
	}
	return out
}
