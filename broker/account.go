package broker

import "fmt"

// Position is a non-negative holding of one symbol. An account holds at
// most one Position per symbol; a fully sold position keeps quantity 0
// and resets its average price to 0.
type Position struct {
	Symbol   string
	Quantity float64
	AvgPrice float64
}

// NewPosition validates and constructs a Position.
func NewPosition(symbol string, quantity, avgPrice float64) (Position, error) {
	if quantity < 0 {
		return Position{}, fmt.Errorf("position %s: quantity must be non-negative", symbol)
	}
	if avgPrice < 0 {
		return Position{}, fmt.Errorf("position %s: avg_price must be non-negative", symbol)
	}
	return Position{Symbol: symbol, Quantity: quantity, AvgPrice: avgPrice}, nil
}

// Account is cash plus an ordered set of positions. The backtest engine
// mutates it in place on confirmed fills; the order flow clones it for
// risk simulation only.
type Account struct {
	Cash      float64
	Positions []Position
}

// NewAccount validates and constructs an Account.
func NewAccount(cash float64, positions []Position) (Account, error) {
	if cash < 0 {
		return Account{}, fmt.Errorf("account: cash must be non-negative")
	}
	for _, p := range positions {
		if _, err := NewPosition(p.Symbol, p.Quantity, p.AvgPrice); err != nil {
			return Account{}, err
		}
	}
	return Account{Cash: cash, Positions: positions}, nil
}

// Clone deep-copies the account so speculative mutation never aliases
// the original.
func (a Account) Clone() Account {
	positions := make([]Position, len(a.Positions))
	copy(positions, a.Positions)
	return Account{Cash: a.Cash, Positions: positions}
}

// Position returns a pointer to the holding for symbol, or nil.
func (a *Account) Position(symbol string) *Position {
	for i := range a.Positions {
		if a.Positions[i].Symbol == symbol {
			return &a.Positions[i]
		}
	}
	return nil
}

// PositionQty returns the held quantity for symbol, 0 when none.
func (a *Account) PositionQty(symbol string) float64 {
	if p := a.Position(symbol); p != nil {
		return p.Quantity
	}
	return 0
}

// Equity values the account at the given mark price for symbol.
func (a *Account) Equity(symbol string, markPrice float64) float64 {
	equity := a.Cash
	for _, p := range a.Positions {
		if p.Symbol == symbol {
			equity += p.Quantity * markPrice
		}
	}
	return equity
}

// AddToPosition buys quantity at price, creating the position or
// weighted-averaging the existing entry price.
func (a *Account) AddToPosition(symbol string, quantity, price float64) {
	if p := a.Position(symbol); p != nil {
		totalCost := p.AvgPrice*p.Quantity + price*quantity
		p.Quantity += quantity
		if p.Quantity > 0 {
			p.AvgPrice = totalCost / p.Quantity
		} else {
			p.AvgPrice = 0
		}
		return
	}
	a.Positions = append(a.Positions, Position{Symbol: symbol, Quantity: quantity, AvgPrice: price})
}

// ReducePosition sells quantity from the holding. The position must
// exist and cover the quantity; quantity driven to exactly 0 resets the
// average price.
func (a *Account) ReducePosition(symbol string, quantity float64) error {
	p := a.Position(symbol)
	if p == nil {
		return fmt.Errorf("sell requires existing position in %s", symbol)
	}
	if quantity > p.Quantity {
		return fmt.Errorf("sell quantity %v exceeds position %v in %s", quantity, p.Quantity, symbol)
	}
	p.Quantity -= quantity
	if p.Quantity == 0 {
		p.AvgPrice = 0
	}
	return nil
}
