// Package backtest drives the bar loop: trigger evaluation, order
// planning, pending-order fills and equity accumulation.
package backtest

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/orderflow"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
	"github.com/rustyeddy/tradebot/trigger"
)

// pendingOrder is an approved order waiting for its first eligible bar.
type pendingOrder struct {
	readyIndex int
	order      broker.OrderRequest
}

// EquityPoint is one snapshot of account value, taken for every bar on
// which any order was pending or processed.
type EquityPoint struct {
	Time   int64
	Equity float64
}

// Result is everything a run produces.
type Result struct {
	Trades      []broker.Trade
	Account     broker.Account
	Metrics     Metrics
	EquityCurve []EquityPoint
	TradePnLs   []*float64
}

// Engine runs one strategy over one candle series. The loop is strictly
// sequential: fills at bar i can depend on orders submitted at bar i-1.
type Engine struct {
	Trigger  *trigger.Engine
	Strategy strategy.Strategy
	Flow     *orderflow.Flow
	Orders   orderflow.Config
	Costs    Costs
}

// Run starts from cash only.
func (e *Engine) Run(candles []market.Candle, startingCash float64) (*Result, error) {
	if startingCash < 0 {
		return nil, fmt.Errorf("starting cash must be non-negative")
	}
	return e.RunWithAccount(candles, broker.Account{Cash: startingCash})
}

// RunWithAccount replays candles against an existing account, mutating
// a private copy and returning it in the result.
func (e *Engine) RunWithAccount(candles []market.Candle, account broker.Account) (*Result, error) {
	if account.Cash < 0 {
		return nil, fmt.Errorf("starting cash must be non-negative")
	}
	for _, p := range account.Positions {
		if p.Quantity < 0 {
			return nil, fmt.Errorf("position %s: quantity must be non-negative", p.Symbol)
		}
	}
	account = account.Clone()
	if len(candles) == 0 {
		return &Result{Account: account}, nil
	}

	var (
		pending     []pendingOrder
		trades      []broker.Trade
		equityCurve []EquityPoint
		tradePnLs   []*float64
		wins        int
		losses      int
	)

	// Starting equity is captured once, before bar 0, valuing any
	// carried position at the first bar's close.
	startingEquity := account.Equity(e.Orders.Symbol, candles[0].Close)

	for index, candle := range candles {
		history := candles[:index+1]

		if e.Trigger.ShouldFire(trigger.Context{Candle: candle, History: history, Now: candle.Time}) {
			ctx := strategy.Context{
				Candle:  candle,
				History: history,
				Account: &account,
				Now:     candle.Time,
			}
			for _, signal := range e.Strategy.OnTick(ctx) {
				orders, err := e.Flow.Plan(signal, ctx, e.Orders)
				if err != nil {
					if errors.Is(err, risk.ErrRejected) {
						// Expected: the whole signal is dropped and the
						// run continues.
						continue
					}
					return nil, err
				}
				for _, order := range orders {
					// Orders become eligible at the next bar; orders
					// submitted on the last bar never fill.
					if ready := index + 1; ready < len(candles) {
						pending = append(pending, pendingOrder{readyIndex: ready, order: order})
					}
				}
			}
		}

		if len(pending) == 0 {
			continue
		}

		next := pending[:0:0]
		for _, po := range pending {
			if po.readyIndex > index {
				next = append(next, po)
				continue
			}

			var (
				trade  broker.Trade
				filled bool
			)
			if po.order.Kind == broker.Limit {
				trade, filled = FillLimit(po.order, candle, e.Costs)
			} else {
				trade, filled = FillMarket(po.order, candle, e.Costs)
			}

			if !filled {
				// Only limit orders stay pending; market orders always
				// resolve.
				if po.order.Kind == broker.Limit {
					next = append(next, po)
				}
				continue
			}

			pnl, err := applyTrade(&account, trade)
			if err != nil {
				return nil, err
			}
			if pnl != nil {
				if *pnl > 0 {
					wins++
				} else if *pnl < 0 {
					losses++
				}
			}
			tradePnLs = append(tradePnLs, pnl)
			trades = append(trades, trade)
		}
		pending = next

		equityCurve = append(equityCurve, EquityPoint{
			Time:   candle.Time,
			Equity: account.Equity(e.Orders.Symbol, candle.Close),
		})
	}

	return &Result{
		Trades:      trades,
		Account:     account,
		Metrics:     computeMetrics(startingEquity, equityCurve, len(trades), wins, losses),
		EquityCurve: equityCurve,
		TradePnLs:   tradePnLs,
	}, nil
}

// applyTrade mutates the real account for a confirmed fill. It returns
// the realized PnL for sells, nil for buys. The oversell check repeats
// the risk manager's gate; reaching it here is an invariant violation
// and aborts the run.
func applyTrade(account *broker.Account, trade broker.Trade) (*float64, error) {
	tradeValue := trade.Price * trade.Quantity
	switch trade.Side {
	case broker.Buy:
		account.Cash -= tradeValue + trade.Fee
		account.AddToPosition(trade.Symbol, trade.Quantity, trade.Price)
		return nil, nil
	case broker.Sell:
		position := account.Position(trade.Symbol)
		if position == nil {
			return nil, fmt.Errorf("trade sell requires existing position in %s", trade.Symbol)
		}
		if trade.Quantity > position.Quantity {
			return nil, fmt.Errorf("trade sell quantity %v exceeds position %v in %s",
				trade.Quantity, position.Quantity, trade.Symbol)
		}
		account.Cash += tradeValue - trade.Fee
		pnl := (trade.Price - position.AvgPrice) * trade.Quantity
		position.Quantity -= trade.Quantity
		if position.Quantity == 0 {
			position.AvgPrice = 0
		}
		return &pnl, nil
	}
	return nil, fmt.Errorf("unknown trade side %q", trade.Side)
}
