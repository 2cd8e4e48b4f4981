package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookLevel is one resting order in an order book, price plus the
// priority time the exchange uses to break ties during matching.
type BookLevel struct {
	OrderID      string          `json:"order_id"`
	Price        decimal.Decimal `json:"price"`
	Volume       decimal.Decimal `json:"volume"`
	PriorityTime time.Time       `json:"priority_time"`
}

// BookSnapshot is a full order book at one instant. Native snapshots come
// from upstream snapshot revisions; synthesized ones are produced by the
// replayer. Bids are sorted by price descending then priority time
// ascending, asks by price ascending then priority time ascending.
type BookSnapshot struct {
	SnapshotID     string      `json:"snapshot_id"`
	ContractID     string      `json:"contract_id"`
	ContractName   string      `json:"contract_name,omitempty"`
	DeliveryArea   string      `json:"delivery_area"`
	DeliveryStart  time.Time   `json:"delivery_start,omitempty"`
	DeliveryEnd    time.Time   `json:"delivery_end,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	RevisionNumber int64       `json:"revision_number"`
	Bids           []BookLevel `json:"bids"`
	Asks           []BookLevel `json:"asks"`
	IsNative       bool        `json:"is_native"`
}
