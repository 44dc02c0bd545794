package trigger

import "github.com/rustyeddy/tradebot/market"

// TimeTrigger fires when the clock lands on an interval boundary.
// A zero interval never fires.
type TimeTrigger struct {
	intervalMinutes int
}

func NewTimeTrigger(intervalMinutes int) *TimeTrigger {
	return &TimeTrigger{intervalMinutes: intervalMinutes}
}

func (t *TimeTrigger) ShouldFire(ctx Context) bool {
	if t.intervalMinutes <= 0 {
		return false
	}
	intervalSeconds := int64(t.intervalMinutes) * 60
	return ctx.Now%intervalSeconds == 0
}

// PriceTrigger fires when the close deviates from its simple moving
// average by the configured thresholds. It does not fire without a full
// window of history or when the average is non-positive.
type PriceTrigger struct {
	maWindow      int
	buyThreshold  float64
	sellThreshold float64
}

func NewPriceTrigger(maWindow int, buyThreshold, sellThreshold float64) *PriceTrigger {
	return &PriceTrigger{
		maWindow:      maWindow,
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
	}
}

func (t *PriceTrigger) ShouldFire(ctx Context) bool {
	price := ctx.Candle.Close
	if price <= 0 {
		return false
	}
	ma, ok := MovingAverage(ctx.History, t.maWindow)
	if !ok || ma <= 0 {
		return false
	}
	buyLevel := ma * (1 - t.buyThreshold)
	sellLevel := ma * (1 + t.sellThreshold)
	return price <= buyLevel || price >= sellLevel
}

// MovingAverage computes the simple moving average of close over the
// last window bars of history, inclusive of the current bar. Returns
// false when the window is zero or history is too short.
func MovingAverage(history []market.Candle, window int) (float64, bool) {
	if window <= 0 || len(history) < window {
		return 0, false
	}
	var sum float64
	for _, c := range history[len(history)-window:] {
		sum += c.Close
	}
	return sum / float64(window), true
}
