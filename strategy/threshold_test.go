package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

func candleSeries(closes ...float64) []market.Candle {
	history := make([]market.Candle, len(closes))
	for i, c := range closes {
		history[i] = market.Candle{Time: int64(i * 60), Open: c, High: c, Low: c, Close: c}
	}
	return history
}

func TestThresholdSignals(t *testing.T) {
	t.Parallel()

	strat := NewThreshold(3, 0.05, 0.05)

	tests := []struct {
		name   string
		closes []float64
		want   broker.Signal
	}{
		{name: "flat holds", closes: []float64{100, 100, 100}, want: broker.SignalHold},
		// MA 96.67, buy level 91.83, close 90.
		{name: "drop buys", closes: []float64{100, 100, 90}, want: broker.SignalBuy},
		// MA 104, sell level 109.2, close 112.
		{name: "spike sells", closes: []float64{100, 100, 112}, want: broker.SignalSell},
		// Within the band either side.
		{name: "small dip holds", closes: []float64{100, 100, 97}, want: broker.SignalHold},
		{name: "short history holds", closes: []float64{100, 50}, want: broker.SignalHold},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			history := candleSeries(tt.closes...)
			ctx := Context{
				Candle:  history[len(history)-1],
				History: history,
				Account: &broker.Account{Cash: 1000},
				Now:     history[len(history)-1].Time,
			}
			signals := strat.OnTick(ctx)
			require.Len(t, signals, 1)
			assert.Equal(t, tt.want, signals[0])
		})
	}
}

func TestThresholdNonPositivePriceHolds(t *testing.T) {
	t.Parallel()

	strat := NewThreshold(2, 0.05, 0.05)
	history := candleSeries(100, 100)
	ctx := Context{Candle: market.Candle{Close: 0}, History: history}

	signals := strat.OnTick(ctx)
	require.Len(t, signals, 1)
	assert.Equal(t, broker.SignalHold, signals[0])
}

func TestByName(t *testing.T) {
	t.Parallel()

	strat, err := ByName("threshold", Params{MAWindow: 3, BuyThreshold: 0.05, SellThreshold: 0.05})
	require.NoError(t, err)
	assert.IsType(t, &Threshold{}, strat)

	strat, err = ByName("noop", Params{})
	require.NoError(t, err)
	assert.Nil(t, strat.OnTick(Context{}))

	_, err = ByName("martingale", Params{})
	assert.Error(t, err)
}
