package strategy

import (
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/trigger"
)

// Threshold emits exactly one signal per tick: Buy when the close is at
// or below the moving average less the buy threshold, Sell when at or
// above the average plus the sell threshold, Hold otherwise. It uses
// the same moving-average math as the price trigger so the two agree on
// when a level is crossed.
type Threshold struct {
	maWindow      int
	buyThreshold  float64
	sellThreshold float64
}

func NewThreshold(maWindow int, buyThreshold, sellThreshold float64) *Threshold {
	return &Threshold{
		maWindow:      maWindow,
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
	}
}

func (s *Threshold) OnTick(ctx Context) []broker.Signal {
	price := ctx.Candle.Close
	if price <= 0 {
		return []broker.Signal{broker.SignalHold}
	}
	ma, ok := trigger.MovingAverage(ctx.History, s.maWindow)
	if !ok || ma <= 0 {
		return []broker.Signal{broker.SignalHold}
	}
	switch {
	case price <= ma*(1-s.buyThreshold):
		return []broker.Signal{broker.SignalBuy}
	case price >= ma*(1+s.sellThreshold):
		return []broker.Signal{broker.SignalSell}
	}
	return []broker.Signal{broker.SignalHold}
}
