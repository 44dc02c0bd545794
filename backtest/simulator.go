package backtest

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
	"github.com/rustyeddy/tradebot/trigger"
)

// Simulator is the bar loop fed one candle at a time, for candle sources
// with no known end such as a live stream. Orders planned on a bar become
// eligible on the next, exactly as in Run; since the series is unbounded
// no order is ever dropped for being past the end.
type Simulator struct {
	engine  *Engine
	account broker.Account
	history []market.Candle
	pending []broker.OrderRequest
}

// NewSimulator seeds the loop with an account and any candle history
// already available, so moving-average windows are warm from the first
// streamed bar. The seed history is not traded against.
func NewSimulator(engine *Engine, account broker.Account, history []market.Candle) (*Simulator, error) {
	if account.Cash < 0 {
		return nil, fmt.Errorf("starting cash must be non-negative")
	}
	for _, p := range account.Positions {
		if p.Quantity < 0 {
			return nil, fmt.Errorf("position %s: quantity must be non-negative", p.Symbol)
		}
	}
	return &Simulator{
		engine:  engine,
		account: account.Clone(),
		history: append([]market.Candle(nil), history...),
	}, nil
}

// Step advances the loop by one closed candle and returns any fills it
// produced. Planning sees the account before this bar's fills, matching
// the batch loop's ordering. Risk rejections drop the signal silently;
// any other error is an invariant violation and poisons the simulator.
func (s *Simulator) Step(candle market.Candle) ([]broker.Trade, error) {
	s.history = append(s.history, candle)

	var planned []broker.OrderRequest
	if s.engine.Trigger.ShouldFire(trigger.Context{Candle: candle, History: s.history, Now: candle.Time}) {
		ctx := strategy.Context{
			Candle:  candle,
			History: s.history,
			Account: &s.account,
			Now:     candle.Time,
		}
		for _, signal := range s.engine.Strategy.OnTick(ctx) {
			orders, err := s.engine.Flow.Plan(signal, ctx, s.engine.Orders)
			if err != nil {
				if errors.Is(err, risk.ErrRejected) {
					continue
				}
				return nil, err
			}
			planned = append(planned, orders...)
		}
	}

	var trades []broker.Trade
	next := s.pending[:0:0]
	for _, order := range s.pending {
		var (
			trade  broker.Trade
			filled bool
		)
		if order.Kind == broker.Limit {
			trade, filled = FillLimit(order, candle, s.engine.Costs)
		} else {
			trade, filled = FillMarket(order, candle, s.engine.Costs)
		}
		if !filled {
			if order.Kind == broker.Limit {
				next = append(next, order)
			}
			continue
		}
		if _, err := applyTrade(&s.account, trade); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	s.pending = append(next, planned...)

	return trades, nil
}

// Account returns a copy of the simulated account.
func (s *Simulator) Account() broker.Account {
	return s.account.Clone()
}

// Equity values the account at the given mark price.
func (s *Simulator) Equity(markPrice float64) float64 {
	return s.account.Equity(s.engine.Orders.Symbol, markPrice)
}

// PendingOrders reports how many orders are waiting for a fill.
func (s *Simulator) PendingOrders() int {
	return len(s.pending)
}
