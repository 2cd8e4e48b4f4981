// Package parse turns raw upstream payloads into canonical records:
// flattened trade legs, delta-volume order flow ticks and native book
// snapshots. Per-record failures are logged and skipped; a malformed row
// never fails its chunk.
package parse

import (
	"log"
	"strings"
	"time"

	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/upstream"
)

// FlattenTrades emits one canonical Trade per (trade, leg) pair so that
// per-area storage is lossless. A legless trade becomes a single record in
// the requested area with side "Unknown".
func FlattenTrades(raw *upstream.TradesResponse, requestArea string) []model.Trade {
	if raw == nil {
		return nil
	}
	var out []model.Trade

	for _, contract := range raw.Contracts {
		deliveryStart, ok := parseTime(contract.DeliveryStart)
		if !ok {
			log.Printf("[parse] trade contract %s: bad deliveryStart %q, skipped",
				contract.ContractID, contract.DeliveryStart)
			continue
		}
		deliveryEnd, ok := parseTime(contract.DeliveryEnd)
		if !ok {
			log.Printf("[parse] trade contract %s: bad deliveryEnd %q, skipped",
				contract.ContractID, contract.DeliveryEnd)
			continue
		}
		duration := deliveryEnd.Sub(deliveryStart)
		ctype := model.ClassifyDuration(duration)

		for _, rt := range contract.Trades {
			tradeTime, ok := parseTime(rt.TradeTime)
			if !ok {
				log.Printf("[parse] trade %s: bad tradeTime %q, skipped", rt.TradeID, rt.TradeTime)
				continue
			}
			updatedAt, _ := parseTime(rt.TradeUpdatedAt)

			base := model.Trade{
				TradeID:         rt.TradeID,
				ContractID:      contract.ContractID,
				ContractName:    contract.ContractName,
				DeliveryStart:   deliveryStart,
				DeliveryEnd:     deliveryEnd,
				DurationMinutes: duration.Minutes(),
				ContractType:    ctype,
				Price:           rt.Price,
				Volume:          rt.Volume,
				TradeTime:       tradeTime,
				TradeUpdatedAt:  updatedAt,
				State:           rt.TradeState,
				RevisionNumber:  rt.RevisionNumber,
				Phase:           rt.TradePhase,
				CrossExchange:   rt.CrossPx,
			}

			if len(rt.Legs) == 0 {
				// The API filtered by area for us; keep the row attributable.
				t := base
				t.DeliveryArea = requestArea
				t.TradeSide = "Unknown"
				out = append(out, t)
				continue
			}
			for _, leg := range rt.Legs {
				t := base
				t.DeliveryArea = leg.DeliveryArea
				t.TradeSide = strings.ToUpper(leg.TradeSide)
				t.ReferenceOrderID = leg.ReferenceOrderID
				out = append(out, t)
			}
		}
	}
	return out
}

// TradeListing projects a representative trade row into the read-API
// contract listing, attaching the computed trading window.
func TradeListing(t *model.Trade, open, close time.Time) model.ContractListing {
	return model.ContractListing{
		ContractID:    t.ContractID,
		Label:         t.ContractName,
		Type:          t.ContractType,
		DeliveryStart: t.DeliveryStart,
		DeliveryEnd:   t.DeliveryEnd,
		OpenTS:        open,
		CloseTS:       close,
	}
}
