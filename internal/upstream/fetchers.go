package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"
)

const (
	pathTrades       = "/api/v2/Intraday/Trades/ByDeliveryStart"
	pathRevisions    = "/api/v2/Intraday/OrderRevisions/ByUpdatedTime"
	pathContractIDs  = "/api/v2/Intraday/OrderBook/ContractsIds/ByArea"
	pathBookContract = "/api/v2/Intraday/OrderBook/ByContractId"

	wireTimeFormat = "2006-01-02T15:04:05Z"
	wireDateFormat = "2006-01-02"
)

// TradesByDeliveryStart fetches all trades of an area whose delivery starts
// in [from, to).
func (c *Client) TradesByDeliveryStart(ctx context.Context, area string, from, to time.Time) (*TradesResponse, error) {
	params := url.Values{}
	params.Set("deliveryStartFrom", from.UTC().Format(wireTimeFormat))
	params.Set("deliveryStartTo", to.UTC().Format(wireTimeFormat))
	params.Set("areas", area)

	body, err := c.doRequest(ctx, pathTrades, params)
	if err != nil {
		return nil, err
	}
	var out TradesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("trades decode: %w", err)
	}
	return &out, nil
}

// ContractsByArea lists the contracts of a delivery date that have order
// books available.
func (c *Client) ContractsByArea(ctx context.Context, area string, date time.Time) (*ContractListResponse, error) {
	params := url.Values{}
	params.Set("area", area)
	params.Set("deliveryDateUtc", date.UTC().Format(wireDateFormat))

	body, err := c.doRequest(ctx, pathContractIDs, params)
	if err != nil {
		return nil, err
	}
	var out ContractListResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("contract list decode: %w", err)
	}
	return &out, nil
}

// OrderBookByContractID fetches the complete revision history of one
// contract's order book. Payloads can run to tens of megabytes.
func (c *Client) OrderBookByContractID(ctx context.Context, area, contractID string, date time.Time) (*OrderBookResponse, error) {
	params := url.Values{}
	params.Set("area", area)
	params.Set("contractId", contractID)
	params.Set("deliveryDateUtc", date.UTC().Format(wireDateFormat))

	body, err := c.doRequest(ctx, pathBookContract, params)
	if err != nil {
		return nil, err
	}
	var out OrderBookResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("order book decode: %w", err)
	}
	return &out, nil
}

// RevisionSlice is one time slice of the revision stream.
type RevisionSlice struct {
	From, To time.Time
	Data     *RevisionsResponse
}

// OrderRevisionsByUpdatedTime streams order revisions with updated_time in
// [from, to). The API caps a single call at a 4 hour window, so the range
// is cut into chunks fetched lazily, one slice per receive. A failed slice
// is logged and skipped; the next slice is still attempted, and the channel
// always closes when the range (or the context) is exhausted.
func (c *Client) OrderRevisionsByUpdatedTime(ctx context.Context, area string, from, to time.Time) <-chan RevisionSlice {
	out := make(chan RevisionSlice, 1)

	go func() {
		defer close(out)

		chunk := c.cfg.RevisionChunk
		slices, failed := 0, 0
		for cur := from; cur.Before(to); {
			end := cur.Add(chunk)
			if end.After(to) {
				end = to
			}

			params := url.Values{}
			params.Set("area", area)
			params.Set("updatedTimeFrom", cur.UTC().Format(wireTimeFormat))
			params.Set("updatedTimeTo", end.UTC().Format(wireTimeFormat))

			body, err := c.doRequest(ctx, pathRevisions, params)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failed++
				log.Printf("[upstream] revision slice %s [%s..%s] failed: %v",
					area, cur.Format(wireTimeFormat), end.Format(wireTimeFormat), err)
				cur = end
				continue
			}

			var data RevisionsResponse
			if err := json.Unmarshal(body, &data); err != nil {
				failed++
				log.Printf("[upstream] revision slice %s decode failed: %v", area, err)
				cur = end
				continue
			}

			select {
			case out <- RevisionSlice{From: cur, To: end, Data: &data}:
				slices++
			case <-ctx.Done():
				return
			}
			cur = end
		}
		if slices > 0 || failed > 0 {
			log.Printf("[upstream] revision stream %s done: %d slices, %d failed", area, slices, failed)
		}
	}()

	return out
}
