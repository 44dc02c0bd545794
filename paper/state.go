// Package paper carries the account across independent paper-mode
// invocations through a persisted state file.
package paper

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rustyeddy/tradebot/broker"
)

type statePosition struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

type stateAccount struct {
	Cash      float64         `json:"cash"`
	Positions []statePosition `json:"positions"`
}

type state struct {
	Account   stateAccount `json:"account"`
	UpdatedAt int64        `json:"updated_at"`
}

// Store persists the paper account at a fixed path. The clock is
// injectable for tests.
type Store struct {
	Path string
	Now  func() int64
}

func NewStore(path string) *Store {
	return &Store{Path: path, Now: func() int64 { return time.Now().Unix() }}
}

// Load returns the persisted account, or ok=false when no state file
// exists. Persisted negatives are fatal, never clamped.
func (s *Store) Load() (broker.Account, bool, error) {
	content, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return broker.Account{}, false, nil
	}
	if err != nil {
		return broker.Account{}, false, fmt.Errorf("paper state read failed: %w", err)
	}
	var st state
	if err := json.Unmarshal(content, &st); err != nil {
		return broker.Account{}, false, fmt.Errorf("paper state parse failed: %w", err)
	}
	positions := make([]broker.Position, 0, len(st.Account.Positions))
	for _, p := range st.Account.Positions {
		pos, err := broker.NewPosition(p.Symbol, p.Quantity, p.AvgPrice)
		if err != nil {
			return broker.Account{}, false, fmt.Errorf("paper state invalid: %w", err)
		}
		positions = append(positions, pos)
	}
	account, err := broker.NewAccount(st.Account.Cash, positions)
	if err != nil {
		return broker.Account{}, false, fmt.Errorf("paper state invalid: %w", err)
	}
	return account, true, nil
}

// Save overwrites the state file with the account, stamping the current
// time. It always writes, even for runs with zero trades.
func (s *Store) Save(account broker.Account) error {
	positions := make([]statePosition, len(account.Positions))
	for i, p := range account.Positions {
		positions[i] = statePosition{Symbol: p.Symbol, Quantity: p.Quantity, AvgPrice: p.AvgPrice}
	}
	st := state{
		Account:   stateAccount{Cash: account.Cash, Positions: positions},
		UpdatedAt: s.Now(),
	}
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("paper state serialize failed: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("paper state dir create failed: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, content, 0o644); err != nil {
		return fmt.Errorf("paper state write failed: %w", err)
	}
	return nil
}
