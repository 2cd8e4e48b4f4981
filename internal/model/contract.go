package model

import "time"

// Contract is static order-book metadata per (contract_id, delivery_area).
// IsArchived flips to true once the full historical revisions payload for
// the contract has been persisted.
type Contract struct {
	ContractID    string    `json:"contract_id"`
	DeliveryArea  string    `json:"delivery_area"`
	ContractName  string    `json:"contract_name"`
	DeliveryStart time.Time `json:"delivery_start"`
	DeliveryEnd   time.Time `json:"delivery_end"`
	OpenAt        time.Time `json:"open_at,omitempty"`
	CloseAt       time.Time `json:"close_at,omitempty"`
	VolumeUnit    string    `json:"volume_unit,omitempty"`
	PriceUnit     string    `json:"price_unit,omitempty"`
	IsArchived    bool      `json:"is_archived"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Key returns "contract_id|area".
func (c *Contract) Key() string {
	return c.ContractID + "|" + c.DeliveryArea
}

// ContractListing is the read-API projection of a traded contract on a
// given delivery date, derived from the trade table.
type ContractListing struct {
	ContractID    string       `json:"contract_id"`
	Label         string       `json:"label"`
	Type          ContractType `json:"type"`
	DeliveryStart time.Time    `json:"delivery_time"`
	DeliveryEnd   time.Time    `json:"delivery_end"`
	OpenTS        time.Time    `json:"open_ts"`
	CloseTS       time.Time    `json:"close_ts"`
}
