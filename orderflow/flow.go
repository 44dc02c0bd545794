package orderflow

import (
	"fmt"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

// Flow coordinates the builder and the risk manager. Plan simulates the
// built orders against a private account clone; the real account is
// only ever touched by the caller after fills confirm.
type Flow struct {
	builder *Builder
	risk    *risk.Manager
}

func NewFlow(riskManager *risk.Manager) *Flow {
	return &Flow{builder: NewBuilder(), risk: riskManager}
}

// Plan builds the orders for a signal and risk-checks them in sequence.
// Each approved order is applied to the simulated account before the
// next is checked, so later orders see the tightened state. If any
// order is rejected the whole signal yields no orders.
func (f *Flow) Plan(signal broker.Signal, ctx strategy.Context, cfg Config) ([]broker.OrderRequest, error) {
	if ctx.Candle.Close <= 0 {
		return nil, fmt.Errorf("reference price must be positive")
	}
	orders, err := f.builder.BuildForSignal(signal, ctx, cfg)
	if err != nil {
		return nil, err
	}
	simulated := ctx.Account.Clone()
	for _, order := range orders {
		if err := f.risk.CheckOrder(&simulated, order, ctx.Candle.Close); err != nil {
			return nil, err
		}
		if err := applyOrder(&simulated, order, ctx.Candle.Close); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// applyOrder advances the simulated account as if the order filled at
// its resolved price. Simulated cash may go negative here; the risk
// checks run before each application, not after.
func applyOrder(account *broker.Account, order broker.OrderRequest, referencePrice float64) error {
	orderPrice := order.Price(referencePrice)
	if orderPrice <= 0 {
		return fmt.Errorf("order price must be positive")
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive")
	}
	orderValue := orderPrice * order.Quantity
	switch order.Side {
	case broker.Buy:
		account.Cash -= orderValue
		account.AddToPosition(order.Symbol, order.Quantity, orderPrice)
	case broker.Sell:
		account.Cash += orderValue
		if err := account.ReducePosition(order.Symbol, order.Quantity); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown order side %q", order.Side)
	}
	return nil
}
