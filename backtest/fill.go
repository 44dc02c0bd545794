package backtest

import (
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// Costs models execution cost for simulated fills.
type Costs struct {
	FeeRate     float64
	SlippageBps int
}

func applySlippage(price float64, side broker.Side, slippageBps int) float64 {
	if slippageBps == 0 {
		return price
	}
	factor := float64(slippageBps) / 10_000
	if side == broker.Buy {
		return price * (1 + factor)
	}
	return price * (1 - factor)
}

// FillMarket always fills at the bar's open adjusted by slippage.
func FillMarket(order broker.OrderRequest, candle market.Candle, costs Costs) (broker.Trade, bool) {
	price := applySlippage(candle.Open, order.Side, costs.SlippageBps)
	return broker.Trade{
		Time:     candle.Time,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Price:    price,
		Quantity: order.Quantity,
		Fee:      price * order.Quantity * costs.FeeRate,
	}, true
}

// FillLimit fills at the exact limit price, with no slippage, when the
// bar's range crosses it. Otherwise the order does not fill this bar.
func FillLimit(order broker.OrderRequest, candle market.Candle, costs Costs) (broker.Trade, bool) {
	if order.Kind != broker.Limit {
		return broker.Trade{}, false
	}
	limitPrice := order.LimitPrice
	crossed := candle.Low <= limitPrice
	if order.Side == broker.Sell {
		crossed = candle.High >= limitPrice
	}
	if !crossed {
		return broker.Trade{}, false
	}
	return broker.Trade{
		Time:     candle.Time,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Price:    limitPrice,
		Quantity: order.Quantity,
		Fee:      limitPrice * order.Quantity * costs.FeeRate,
	}, true
}
