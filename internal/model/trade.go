package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractType classifies a contract by its delivery duration.
type ContractType string

const (
	ContractPH    ContractType = "PH"    // hourly (60 min) delivery
	ContractQH    ContractType = "QH"    // quarter-hour (15 min) delivery
	ContractOther ContractType = "Other" // blocks and everything else
)

// durationTolerance is the slack allowed when matching delivery durations.
const durationTolerance = time.Minute

// ClassifyDuration maps a delivery window length to a contract type.
// ~60 min => PH, ~15 min => QH (1 minute tolerance either way), else Other.
func ClassifyDuration(d time.Duration) ContractType {
	if d >= 60*time.Minute-durationTolerance && d <= 60*time.Minute+durationTolerance {
		return ContractPH
	}
	if d >= 15*time.Minute-durationTolerance && d <= 15*time.Minute+durationTolerance {
		return ContractQH
	}
	return ContractOther
}

// Trade is one leg of an executed intraday trade in one delivery area.
// A logical trade appears once per (side, area); the same trade_id may
// recur across areas and sides.
type Trade struct {
	TradeID      string `json:"trade_id"`
	DeliveryArea string `json:"delivery_area"`
	TradeSide    string `json:"trade_side"` // BUY, SELL, Unknown

	ContractID      string       `json:"contract_id"`
	ContractName    string       `json:"contract_name"`
	DeliveryStart   time.Time    `json:"delivery_start"`
	DeliveryEnd     time.Time    `json:"delivery_end"`
	DurationMinutes float64      `json:"duration_minutes"`
	ContractType    ContractType `json:"contract_type"`

	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`

	TradeTime      time.Time `json:"trade_time"`
	TradeUpdatedAt time.Time `json:"trade_updated_at"`
	State          string    `json:"state"` // Completed, Cancelled, Disputed, ...
	RevisionNumber int64     `json:"revision_number"`
	Phase          string    `json:"phase"`
	CrossExchange  bool      `json:"cross_exchange"`

	ReferenceOrderID string `json:"reference_order_id"`
}

// Key returns the logical identity "trade_id|area|side".
func (t *Trade) Key() string {
	return t.TradeID + "|" + t.DeliveryArea + "|" + t.TradeSide
}
