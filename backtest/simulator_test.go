package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/orderflow"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategy"
)

func newTestSimulator(t *testing.T, strat strategy.Strategy, cash float64) *Simulator {
	t.Helper()
	engine := newTestEngine(t, strat, marketOrders(), Costs{})
	sim, err := NewSimulator(engine, broker.Account{Cash: cash}, nil)
	require.NoError(t, err)
	return sim
}

func TestSimulatorRejectsNegativeCash(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, strategy.Noop{}, marketOrders(), Costs{})
	_, err := NewSimulator(engine, broker.Account{Cash: -1}, nil)
	assert.Error(t, err)
}

func TestSimulatorFillsOnNextStep(t *testing.T) {
	t.Parallel()

	strat := &scriptedStrategy{signals: map[int64]broker.Signal{0: broker.SignalBuy}}
	sim := newTestSimulator(t, strat, 1000)

	candles := flatCandles(2, 100)
	candles[1].Open = 104
	candles[1].High = 104

	trades, err := sim.Step(candles[0])
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 1, sim.PendingOrders())

	trades, err = sim.Step(candles[1])
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 104.0, trades[0].Price)
	assert.Equal(t, int64(60), trades[0].Time)
	assert.Zero(t, sim.PendingOrders())
}

func TestSimulatorPlanningPrecedesFills(t *testing.T) {
	t.Parallel()

	// The sell is signaled on the same bar the buy fills, so it sizes
	// against a position of zero and produces no order.
	strat := &scriptedStrategy{signals: map[int64]broker.Signal{
		0:  broker.SignalBuy,
		60: broker.SignalSell,
	}}
	sim := newTestSimulator(t, strat, 1000)

	for _, candle := range flatCandles(3, 100) {
		_, err := sim.Step(candle)
		require.NoError(t, err)
	}
	acct := sim.Account()
	assert.Equal(t, 5.0, acct.PositionQty("BTCUSDT"))
}

func TestSimulatorLimitOrderPendsAcrossSteps(t *testing.T) {
	t.Parallel()

	strat := &scriptedStrategy{signals: map[int64]broker.Signal{0: broker.SignalBuy}}
	engine := newTestEngine(t, strat, orderflow.Config{
		Symbol:         "BTCUSDT",
		OrderKind:      broker.Limit,
		LimitOffsetBps: 50,
		BuyCashRatio:   0.5,
		SellPosRatio:   1,
	}, Costs{})
	sim, err := NewSimulator(engine, broker.Account{Cash: 1000}, nil)
	require.NoError(t, err)

	// Limit buy at 99.5; flat bars at 100 never cross it.
	candles := flatCandles(4, 100)
	candles[3].Low = 98
	candles[3].Open = 99

	for _, candle := range candles[:3] {
		trades, err := sim.Step(candle)
		require.NoError(t, err)
		assert.Empty(t, trades)
	}
	assert.Equal(t, 1, sim.PendingOrders())

	trades, err := sim.Step(candles[3])
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 99.5, trades[0].Price)
}

func TestSimulatorSeedHistoryWarmsIndicators(t *testing.T) {
	t.Parallel()

	// Threshold strategy with window 3: with two seed bars the very
	// first streamed bar already has a full window and can signal.
	strat, err := strategy.ByName("threshold", strategy.Params{
		MAWindow: 3, BuyThreshold: 0.05, SellThreshold: 0.05,
	})
	require.NoError(t, err)
	engine := newTestEngine(t, strat, marketOrders(), Costs{})

	seed := flatCandles(2, 100)
	sim, err := NewSimulator(engine, broker.Account{Cash: 1000}, seed)
	require.NoError(t, err)

	dip := market.Candle{Time: 120, Open: 100, High: 100, Low: 88, Close: 88, Volume: 1}
	trades, err := sim.Step(dip)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 1, sim.PendingOrders())
}

func TestSimulatorRiskRejectionDropsSignal(t *testing.T) {
	t.Parallel()

	manager, err := risk.NewManager(risk.Limits{MaxTradeRatio: 0.01, MinCashReserveRatio: 0, MaxPositionValueRatio: 1})
	require.NoError(t, err)
	strat := &scriptedStrategy{signals: map[int64]broker.Signal{0: broker.SignalBuy}}
	engine := newTestEngine(t, strat, marketOrders(), Costs{})
	engine.Flow = orderflow.NewFlow(manager)

	sim, err := NewSimulator(engine, broker.Account{Cash: 1000}, nil)
	require.NoError(t, err)

	for _, candle := range flatCandles(2, 100) {
		trades, err := sim.Step(candle)
		require.NoError(t, err)
		assert.Empty(t, trades)
	}
	assert.Zero(t, sim.PendingOrders())
	assert.Equal(t, 1000.0, sim.Account().Cash)
}
