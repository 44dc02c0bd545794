package orderflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/risk"
)

func newTestFlow(t *testing.T, limits risk.Limits) *Flow {
	t.Helper()
	manager, err := risk.NewManager(limits)
	require.NoError(t, err)
	return NewFlow(manager)
}

func permissiveLimits() risk.Limits {
	return risk.Limits{MaxTradeRatio: 1, MinCashReserveRatio: 0, MaxPositionValueRatio: 1}
}

func TestPlanDoesNotMutateAccount(t *testing.T) {
	t.Parallel()

	flow := newTestFlow(t, permissiveLimits())
	account := &broker.Account{Cash: 1000}
	ctx := tickContext(100, account)

	orders, err := flow.Plan(broker.SignalBuy, ctx, marketConfig())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// Planning only simulates; the caller applies fills later.
	assert.Equal(t, 1000.0, account.Cash)
	assert.Empty(t, account.Positions)
}

func TestPlanRejectionPropagatesSentinel(t *testing.T) {
	t.Parallel()

	flow := newTestFlow(t, risk.Limits{MaxTradeRatio: 0.1, MinCashReserveRatio: 0, MaxPositionValueRatio: 1})
	account := &broker.Account{Cash: 1000}
	ctx := tickContext(100, account)

	// 1000 * 0.3 = 300 > allowance 100.
	_, err := flow.Plan(broker.SignalBuy, ctx, marketConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrRejected))
}

func TestPlanChecksSequenceAgainstTightenedState(t *testing.T) {
	t.Parallel()

	// The sell passes alone; the rebuy that follows it is checked
	// against the post-sell simulated account and can still fail.
	flow := newTestFlow(t, risk.Limits{MaxTradeRatio: 0.001, MinCashReserveRatio: 0, MaxPositionValueRatio: 1})
	cfg := marketConfig()
	cfg.RebuyCashRatio = 1

	account := &broker.Account{Cash: 100, Positions: []broker.Position{{Symbol: "BTCUSDT", Quantity: 4, AvgPrice: 90}}}
	_, err := flow.Plan(broker.SignalSell, tickContext(100, account), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrRejected))
}

func TestPlanSellThenRebuySucceeds(t *testing.T) {
	t.Parallel()

	flow := newTestFlow(t, permissiveLimits())
	cfg := marketConfig()
	cfg.RebuyCashRatio = 0.25

	account := &broker.Account{Cash: 100, Positions: []broker.Position{{Symbol: "BTCUSDT", Quantity: 4, AvgPrice: 90}}}
	orders, err := flow.Plan(broker.SignalSell, tickContext(100, account), cfg)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, broker.Sell, orders[0].Side)
	assert.Equal(t, broker.Buy, orders[1].Side)
}

func TestPlanHoldYieldsNothing(t *testing.T) {
	t.Parallel()

	flow := newTestFlow(t, permissiveLimits())
	orders, err := flow.Plan(broker.SignalHold, tickContext(100, &broker.Account{Cash: 1000}), marketConfig())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlanBadReferencePrice(t *testing.T) {
	t.Parallel()

	flow := newTestFlow(t, permissiveLimits())
	_, err := flow.Plan(broker.SignalBuy, tickContext(0, &broker.Account{Cash: 1000}), marketConfig())
	require.Error(t, err)
	assert.False(t, errors.Is(err, risk.ErrRejected))
}
