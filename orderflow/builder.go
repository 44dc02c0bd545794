// Package orderflow turns strategy signals into risk-gated order
// sequences.
package orderflow

import (
	"fmt"
	"sync/atomic"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/strategy"
)

// Config is the sizing and order-shape surface the builder consumes.
type Config struct {
	Symbol         string
	OrderKind      broker.OrderKind
	LimitOffsetBps int
	BuyCashRatio   float64
	SellPosRatio   float64
	RebuyCashRatio float64
}

// Builder sizes signals into concrete orders. Client order ids are
// monotonically increasing and unique for the life of the process.
type Builder struct {
	nextID atomic.Uint64
}

func NewBuilder() *Builder {
	b := &Builder{}
	b.nextID.Store(1)
	return b
}

// BuildForSignal converts one signal into zero or more orders, sized
// off the account in ctx at the current close. A Sell signal may add a
// rebuy order sized off the sold quantity; the pair is risk-checked as
// a combined sequence by Flow.Plan.
func (b *Builder) BuildForSignal(signal broker.Signal, ctx strategy.Context, cfg Config) ([]broker.OrderRequest, error) {
	price := ctx.Candle.Close
	if price <= 0 {
		return nil, fmt.Errorf("reference price must be positive")
	}

	switch signal {
	case broker.SignalHold:
		return nil, nil

	case broker.SignalBuy:
		cash := ctx.Account.Cash
		if cash <= 0 {
			return nil, nil
		}
		amount := cash * cfg.BuyCashRatio
		if amount <= 0 {
			return nil, nil
		}
		order, err := b.newOrder(cfg, broker.Buy, price, amount/price)
		if err != nil {
			return nil, err
		}
		return []broker.OrderRequest{order}, nil

	case broker.SignalSell:
		held := ctx.Account.PositionQty(cfg.Symbol)
		if held <= 0 {
			return nil, nil
		}
		sellQty := held * cfg.SellPosRatio
		if sellQty <= 0 {
			return nil, nil
		}
		sell, err := b.newOrder(cfg, broker.Sell, price, sellQty)
		if err != nil {
			return nil, err
		}
		orders := []broker.OrderRequest{sell}

		// The rebuy is sized off cash that has not yet arrived from
		// the paired sell; the risk simulation sees pre-sell cash.
		// Literal carry-over of upstream behavior, see DESIGN.md.
		if cfg.RebuyCashRatio > 0 {
			if rebuyQty := sellQty * cfg.RebuyCashRatio; rebuyQty > 0 {
				rebuy, err := b.newOrder(cfg, broker.Buy, price, rebuyQty)
				if err != nil {
					return nil, err
				}
				orders = append(orders, rebuy)
			}
		}
		return orders, nil
	}
	return nil, fmt.Errorf("unknown signal %v", signal)
}

func (b *Builder) newOrder(cfg Config, side broker.Side, referencePrice, quantity float64) (broker.OrderRequest, error) {
	if quantity <= 0 {
		return broker.OrderRequest{}, fmt.Errorf("order quantity must be positive")
	}
	order := broker.OrderRequest{
		ClientOrderID: fmt.Sprintf("order-%d", b.nextID.Add(1)-1),
		Symbol:        cfg.Symbol,
		Side:          side,
		Quantity:      quantity,
	}
	switch cfg.OrderKind {
	case broker.Market:
		order.Kind = broker.Market
	case broker.Limit:
		offset := float64(cfg.LimitOffsetBps) / 10_000
		order.Kind = broker.Limit
		if side == broker.Buy {
			order.LimitPrice = referencePrice * (1 - offset)
		} else {
			order.LimitPrice = referencePrice * (1 + offset)
		}
	default:
		return broker.OrderRequest{}, fmt.Errorf("order kind must be market or limit, got %q", cfg.OrderKind)
	}
	return order, nil
}
