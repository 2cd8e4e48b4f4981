package model

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TickType is the canonical event type of an order revision.
type TickType string

const (
	TickNew    TickType = "NEW"
	TickTrade  TickType = "TRADE"
	TickCancel TickType = "CANCEL"
	TickUpdate TickType = "UPDATE"
)

// Order sides and aggressor values as stored on ticks.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
	SideNone = "NONE"
)

// Tick sources.
const (
	SourceRealtime   = "realtime"
	SourceHistorical = "historical"
)

// Tick is a single order revision, the atomic event of the order stream.
// Volume is the reconstructed delta for this revision (traded, cancelled or
// added quantity); RemainingVolume is the order's remaining quantity as
// reported upstream and is what book reconstruction must use.
type Tick struct {
	TickID string `json:"tick_id"`

	ContractID    string    `json:"contract_id"`
	ContractName  string    `json:"contract_name,omitempty"`
	DeliveryArea  string    `json:"delivery_area"`
	DeliveryStart time.Time `json:"delivery_start,omitempty"`
	DeliveryEnd   time.Time `json:"delivery_end,omitempty"`

	OrderID string `json:"order_id"`
	Side    string `json:"side"` // BUY or SELL

	Price           decimal.Decimal `json:"price"`
	Volume          decimal.Decimal `json:"volume"`
	RemainingVolume decimal.Decimal `json:"remaining_volume"`

	UpdatedTime  time.Time `json:"updated_time"`
	PriorityTime time.Time `json:"priority_time,omitempty"` // zero when upstream omits it

	Type          TickType `json:"type"`
	RawAction     string   `json:"raw_action,omitempty"`
	AggressorSide string   `json:"aggressor_side"` // BUY, SELL or NONE

	RevisionNumber int64     `json:"revision_number"`
	IsSnapshot     bool      `json:"is_snapshot"`
	IsDeleted      bool      `json:"is_deleted"`
	RootUpdatedAt  time.Time `json:"root_updated_at,omitempty"`
	Source         string    `json:"source"`
}

// TickID derives the deterministic identity of a revision event. Re-ingesting
// the same revision always produces the same ID, which is what makes
// at-least-once fetching safe against the conflict-ignoring insert.
func TickID(contractID, area string, revision int64, orderID string, updated time.Time, action string) string {
	h := md5.Sum([]byte(contractID + "_" + area + "_" +
		strconv.FormatInt(revision, 10) + "_" +
		strconv.FormatInt(updated.UTC().UnixNano(), 10) + "_" +
		orderID + "_" + action))
	return hex.EncodeToString(h[:])
}

// JSON returns the JSON-encoded tick.
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
