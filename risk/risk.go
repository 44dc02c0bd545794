// Package risk validates orders against the simulated post-trade
// account state.
package risk

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/tradebot/broker"
)

// ErrRejected marks an expected, recoverable risk rejection. Callers
// distinguish it from invariant violations with errors.Is.
var ErrRejected = errors.New("risk rejected")

// Rejection wraps ErrRejected with the offending order and reason.
type Rejection struct {
	ClientOrderID string
	Reason        string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("order %s rejected: %s", r.ClientOrderID, r.Reason)
}

func (r *Rejection) Unwrap() error { return ErrRejected }

func reject(order broker.OrderRequest, format string, args ...any) error {
	return &Rejection{ClientOrderID: order.ClientOrderID, Reason: fmt.Sprintf(format, args...)}
}

// Limits are the configured risk ratios, each in [0, 1].
type Limits struct {
	MaxTradeRatio         float64
	MinCashReserveRatio   float64
	MaxPositionValueRatio float64
}

// Validate rejects ratios outside [0, 1].
func (l Limits) Validate() error {
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"max_trade_ratio", l.MaxTradeRatio},
		{"min_cash_reserve_ratio", l.MinCashReserveRatio},
		{"max_position_value_ratio", l.MaxPositionValueRatio},
	} {
		if check.value < 0 || check.value > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", check.name, check.value)
		}
	}
	return nil
}

// Manager gates orders against an account snapshot. The snapshot is the
// account as of just before the specific order under check, so a
// multi-order signal is tightened sequentially.
type Manager struct {
	limits Limits
}

func NewManager(limits Limits) (*Manager, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Manager{limits: limits}, nil
}

// CheckOrder returns nil when the order passes every limit, or the
// first violation. Market orders resolve against referencePrice.
func (m *Manager) CheckOrder(account *broker.Account, order broker.OrderRequest, referencePrice float64) error {
	if order.Quantity <= 0 {
		return fmt.Errorf("order %s: quantity must be positive", order.ClientOrderID)
	}
	if account.Cash < 0 {
		return fmt.Errorf("order %s: account cash must be non-negative", order.ClientOrderID)
	}
	orderPrice := order.Price(referencePrice)
	if orderPrice <= 0 {
		return fmt.Errorf("order %s: order price must be positive", order.ClientOrderID)
	}

	orderValue := orderPrice * order.Quantity
	if order.Side == broker.Sell {
		if held := account.PositionQty(order.Symbol); order.Quantity > held {
			return reject(order, "sell quantity %v exceeds position %v", order.Quantity, held)
		}
		return nil
	}

	maxTradeValue := account.Cash * m.limits.MaxTradeRatio
	if orderValue > maxTradeValue {
		return reject(order, "value %v exceeds max_trade_ratio allowance %v", orderValue, maxTradeValue)
	}
	remainingCash := account.Cash - orderValue
	minCash := account.Cash * m.limits.MinCashReserveRatio
	if remainingCash < minCash {
		return reject(order, "remaining cash %v below min_cash_reserve %v", remainingCash, minCash)
	}
	positionValue := account.PositionQty(order.Symbol) * orderPrice
	newPositionValue := positionValue + orderValue
	portfolioValue := account.Cash + positionValue
	if portfolioValue > 0 {
		if ratio := newPositionValue / portfolioValue; ratio > m.limits.MaxPositionValueRatio {
			return reject(order, "position ratio %v exceeds max_position_value_ratio %v", ratio, m.limits.MaxPositionValueRatio)
		}
	}
	return nil
}
