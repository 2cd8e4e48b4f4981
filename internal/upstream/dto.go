package upstream

import "github.com/shopspring/decimal"

// Raw response shapes of the exchange data API. Field names mirror the wire
// JSON; timestamps stay strings here and are parsed by the normalizers so a
// malformed record skips one row instead of failing a whole payload.

// TradesResponse is the body of /api/v2/Intraday/Trades/ByDeliveryStart.
type TradesResponse struct {
	VolumeUnit string          `json:"volumeUnit"`
	Contracts  []TradeContract `json:"contracts"`
}

// TradeContract groups the trades of one contract.
type TradeContract struct {
	ContractID    string     `json:"contractId"`
	ContractName  string     `json:"contractName"`
	DeliveryStart string     `json:"deliveryStart"`
	DeliveryEnd   string     `json:"deliveryEnd"`
	Trades        []RawTrade `json:"trades"`
}

// RawTrade is one executed trade with its legs.
type RawTrade struct {
	TradeID        string          `json:"tradeId"`
	TradeTime      string          `json:"tradeTime"`
	TradeUpdatedAt string          `json:"tradeUpdatedAt"`
	TradeState     string          `json:"tradeState"`
	RevisionNumber int64           `json:"revisionNumber"`
	Price          decimal.Decimal `json:"price"`
	Volume         decimal.Decimal `json:"volume"`
	TradePhase     string          `json:"tradePhase"`
	CrossPx        bool            `json:"crossPx"`
	Legs           []TradeLeg      `json:"legs"`
}

// TradeLeg is one side of a trade in one delivery area.
type TradeLeg struct {
	DeliveryArea     string `json:"deliveryArea"`
	ReferenceOrderID string `json:"referenceOrderId"`
	TradeSide        string `json:"tradeSide"`
}

// RevisionsResponse is the body of
// /api/v2/Intraday/OrderRevisions/ByUpdatedTime (per-order grouping).
type RevisionsResponse struct {
	Contracts []RevisionContract `json:"contracts"`
}

// RevisionContract groups the order revisions of one contract.
type RevisionContract struct {
	ContractID    string     `json:"contractId"`
	ContractName  string     `json:"contractName"`
	DeliveryStart string     `json:"deliveryStart"`
	DeliveryEnd   string     `json:"deliveryEnd"`
	Orders        []RawOrder `json:"orders"`
}

// RawOrder is one order with its revision history.
type RawOrder struct {
	OrderID     string        `json:"orderId"`
	Side        string        `json:"side"`
	CreatedTime string        `json:"createdTime"`
	Revisions   []RawRevision `json:"revisions"`
}

// RawRevision is one atomic order update.
type RawRevision struct {
	RevisionNumber int64           `json:"revisionNumber"`
	Action         string          `json:"action"`
	Price          decimal.Decimal `json:"price"`
	Volume         decimal.Decimal `json:"volume"`
	UpdatedTime    string          `json:"updatedTime"`
	PriorityTime   string          `json:"priorityTime"`
}

// ContractListResponse is the body of
// /api/v2/Intraday/OrderBook/ContractsIds/ByArea.
type ContractListResponse struct {
	Contracts []ContractEntry `json:"contracts"`
}

// ContractEntry is one contract with an available order book. Some API
// versions name the identifier "id" instead of "contractId".
type ContractEntry struct {
	ContractID    string `json:"contractId"`
	ID            string `json:"id"`
	ContractName  string `json:"contractName"`
	DeliveryStart string `json:"deliveryStart"`
	DeliveryEnd   string `json:"deliveryEnd"`
}

// Identifier returns whichever of the two id fields is populated.
func (c *ContractEntry) Identifier() string {
	if c.ContractID != "" {
		return c.ContractID
	}
	return c.ID
}

// OrderBookResponse is the body of /api/v2/Intraday/OrderBook/ByContractId
// (per-revision grouping, potentially large).
type OrderBookResponse struct {
	ContractID   string         `json:"contractId"`
	DeliveryArea string         `json:"deliveryArea"`
	UpdatedAt    string         `json:"updatedAt"`
	Revisions    []BookRevision `json:"revisions"`
}

// BookRevision is one order book change set; isSnapshot marks a full book.
type BookRevision struct {
	Revision   int64          `json:"revision"`
	IsSnapshot bool           `json:"isSnapshot"`
	UpdatedAt  string         `json:"updatedAt"`
	BuyOrders  []BookOrderRow `json:"buyOrders"`
	SellOrders []BookOrderRow `json:"sellOrders"`
}

// BookOrderRow is one order row inside a book revision.
type BookOrderRow struct {
	OrderID      string          `json:"orderId"`
	Price        decimal.Decimal `json:"price"`
	Volume       decimal.Decimal `json:"volume"`
	UpdatedTime  string          `json:"updatedTime"`
	PriorityTime string          `json:"priorityTime"`
	Deleted      bool            `json:"deleted"`
}

// TokenResponse is the STS password-grant response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
