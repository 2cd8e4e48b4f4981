// Package cold is the cold tier: one snappy-compressed parquet file per
// (area, delivery date, contract), holding the contract's full tick log.
// Layout: {root}/{area}/{YYYY-MM-DD}/{contract_id}.parquet
package cold

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
)

// Store writes and reads cold tick files under a root directory.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cold mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// tickRow is the flat parquet schema. Decimals travel as strings to keep
// exchange precision; timestamps as UTC unix nanos with 0 meaning unset.
type tickRow struct {
	TickID          string `parquet:"tick_id,snappy"`
	ContractID      string `parquet:"contract_id,snappy"`
	ContractName    string `parquet:"contract_name,snappy"`
	DeliveryArea    string `parquet:"delivery_area,snappy"`
	DeliveryStart   int64  `parquet:"delivery_start,snappy"`
	DeliveryEnd     int64  `parquet:"delivery_end,snappy"`
	OrderID         string `parquet:"order_id,snappy"`
	Side            string `parquet:"side,snappy"`
	Price           string `parquet:"price,snappy"`
	Volume          string `parquet:"volume,snappy"`
	RemainingVolume string `parquet:"remaining_volume,snappy"`
	UpdatedTime     int64  `parquet:"updated_time,snappy"`
	PriorityTime    int64  `parquet:"priority_time,snappy"`
	Type            string `parquet:"type,snappy"`
	RawAction       string `parquet:"raw_action,snappy"`
	AggressorSide   string `parquet:"aggressor_side,snappy"`
	RevisionNumber  int64  `parquet:"revision_number,snappy"`
	IsSnapshot      bool   `parquet:"is_snapshot,snappy"`
	IsDeleted       bool   `parquet:"is_deleted,snappy"`
	RootUpdatedAt   int64  `parquet:"root_updated_at,snappy"`
	Source          string `parquet:"source,snappy"`
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func toRow(t model.Tick) tickRow {
	return tickRow{
		TickID:          t.TickID,
		ContractID:      t.ContractID,
		ContractName:    t.ContractName,
		DeliveryArea:    t.DeliveryArea,
		DeliveryStart:   toNanos(t.DeliveryStart),
		DeliveryEnd:     toNanos(t.DeliveryEnd),
		OrderID:         t.OrderID,
		Side:            t.Side,
		Price:           t.Price.String(),
		Volume:          t.Volume.String(),
		RemainingVolume: t.RemainingVolume.String(),
		UpdatedTime:     toNanos(t.UpdatedTime),
		PriorityTime:    toNanos(t.PriorityTime),
		Type:            string(t.Type),
		RawAction:       t.RawAction,
		AggressorSide:   t.AggressorSide,
		RevisionNumber:  t.RevisionNumber,
		IsSnapshot:      t.IsSnapshot,
		IsDeleted:       t.IsDeleted,
		RootUpdatedAt:   toNanos(t.RootUpdatedAt),
		Source:          t.Source,
	}
}

func fromRow(r tickRow) model.Tick {
	price, _ := decimal.NewFromString(r.Price)
	vol, _ := decimal.NewFromString(r.Volume)
	rem, _ := decimal.NewFromString(r.RemainingVolume)
	return model.Tick{
		TickID:          r.TickID,
		ContractID:      r.ContractID,
		ContractName:    r.ContractName,
		DeliveryArea:    r.DeliveryArea,
		DeliveryStart:   fromNanos(r.DeliveryStart),
		DeliveryEnd:     fromNanos(r.DeliveryEnd),
		OrderID:         r.OrderID,
		Side:            r.Side,
		Price:           price,
		Volume:          vol,
		RemainingVolume: rem,
		UpdatedTime:     fromNanos(r.UpdatedTime),
		PriorityTime:    fromNanos(r.PriorityTime),
		Type:            model.TickType(r.Type),
		RawAction:       r.RawAction,
		AggressorSide:   r.AggressorSide,
		RevisionNumber:  r.RevisionNumber,
		IsSnapshot:      r.IsSnapshot,
		IsDeleted:       r.IsDeleted,
		RootUpdatedAt:   fromNanos(r.RootUpdatedAt),
		Source:          r.Source,
	}
}

func (s *Store) path(area string, date time.Time, contractID string) string {
	return filepath.Join(s.root, area, date.UTC().Format("2006-01-02"), contractID+".parquet")
}

// WriteTickFile persists the full tick log of a contract for a day. The
// file is written to a temp name and renamed, so readers never observe a
// partial file; re-archiving replaces it as a whole.
func (s *Store) WriteTickFile(area string, date time.Time, contractID string, ticks []model.Tick) error {
	path := s.path(area, date, contractID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cold mkdir: %w", err)
	}

	rows := make([]tickRow, len(ticks))
	for i, t := range ticks {
		rows[i] = toRow(t)
	}

	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cold write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cold rename %s: %w", path, err)
	}
	log.Printf("[cold] wrote %s (%d ticks)", path, len(ticks))
	return nil
}

// ReadTickFile loads a cold file. Returns (nil, nil) when the file does not
// exist, so callers can fall through to the hot store.
func (s *Store) ReadTickFile(area string, date time.Time, contractID string) ([]model.Tick, error) {
	path := s.path(area, date, contractID)
	rows, err := parquet.ReadFile[tickRow](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cold read %s: %w", path, err)
	}
	ticks := make([]model.Tick, len(rows))
	for i, r := range rows {
		ticks[i] = fromRow(r)
	}
	return ticks, nil
}

// HasTickFile reports whether the cold file for (area, date, contract) exists.
func (s *Store) HasTickFile(area string, date time.Time, contractID string) bool {
	_, err := os.Stat(s.path(area, date, contractID))
	return err == nil
}
