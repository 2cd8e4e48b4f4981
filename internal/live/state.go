// Package live is the per-area strategy runner: each scheduler tick it
// feeds the latest feature candles to a strategy adapter, matches the
// resulting orders against recent order flow, and persists its state to
// a JSON file so a restart resumes where it left off.
package live

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// Mode tags how fills are produced.
type Mode string

const (
	// ModeReplay matches simulated fills against historical candles.
	ModeReplay Mode = "REPLAY"
	// ModePaper matches simulated fills against live ticks.
	ModePaper Mode = "PAPER"
	// ModeLive routes orders externally; no internal matching.
	ModeLive Mode = "LIVE"
)

// Order is one resting order owned by the runner.
type Order struct {
	OrderID    string          `json:"order_id"`
	ContractID string          `json:"contract_id"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	PlacedAt   time.Time       `json:"placed_at"`
}

// Stats accumulates simulated execution costs across the runner's life.
type Stats struct {
	Slippage decimal.Decimal `json:"slippage"`
	Fees     decimal.Decimal `json:"fees"`
}

// State is the persisted runner state. Decimals marshal as strings.
type State struct {
	Cash      decimal.Decimal `json:"cash"`
	Position  decimal.Decimal `json:"position"`
	Orders    []Order         `json:"orders"`
	Stats     Stats           `json:"stats"`
	UpdatedAt time.Time       `json:"_updated_at"`
}

func newState(cash decimal.Decimal) *State {
	return &State{
		Cash:   cash,
		Orders: []Order{},
	}
}

// StateFile persists runner state as JSON on disk.
type StateFile struct {
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the state file. A missing file returns (nil, nil).
func (f *StateFile) Load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("live state %s: %w", f.path, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("live state %s: decode: %w", f.path, err)
	}
	if st.Orders == nil {
		st.Orders = []Order{}
	}
	return &st, nil
}

// Save writes the state atomically (temp file + rename) and stamps
// _updated_at.
func (f *StateFile) Save(st *State) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("live state %s: encode: %w", f.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("live state %s: %w", f.path, err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("live state %s: %w", f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("live state %s: %w", f.path, err)
	}
	return nil
}
