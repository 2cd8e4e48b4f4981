package parse

import (
	"log"

	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/upstream"
)

// ContractEntries converts a contract listing payload into metadata rows
// for the given area. Entries without a usable id or delivery window are
// logged and skipped.
func ContractEntries(area string, raw *upstream.ContractListResponse) []model.Contract {
	if raw == nil {
		return nil
	}
	out := make([]model.Contract, 0, len(raw.Contracts))
	for _, e := range raw.Contracts {
		id := e.Identifier()
		if id == "" {
			log.Printf("[parse] contract entry without id (%q), skipped", e.ContractName)
			continue
		}
		start, ok := parseTime(e.DeliveryStart)
		if !ok {
			log.Printf("[parse] contract %s: bad deliveryStart %q, skipped", id, e.DeliveryStart)
			continue
		}
		end, ok := parseTime(e.DeliveryEnd)
		if !ok {
			log.Printf("[parse] contract %s: bad deliveryEnd %q, skipped", id, e.DeliveryEnd)
			continue
		}
		out = append(out, model.Contract{
			ContractID:    id,
			DeliveryArea:  area,
			ContractName:  e.ContractName,
			DeliveryStart: start,
			DeliveryEnd:   end,
		})
	}
	return out
}
