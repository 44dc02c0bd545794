package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// stubExchange returns canned snapshot data.
type stubExchange struct {
	balances    []broker.Balance
	positions   []broker.Position
	openOrders  []broker.OrderAck
	balancesErr error
}

func (s *stubExchange) PlaceOrder(context.Context, broker.OrderRequest) (broker.OrderAck, error) {
	return broker.OrderAck{}, nil
}
func (s *stubExchange) CancelOrder(context.Context, string) error { return nil }
func (s *stubExchange) FetchBalances(context.Context) ([]broker.Balance, error) {
	return s.balances, s.balancesErr
}
func (s *stubExchange) FetchPositions(context.Context) ([]broker.Position, error) {
	return s.positions, nil
}
func (s *stubExchange) FetchOpenOrders(context.Context) ([]broker.OrderAck, error) {
	return s.openOrders, nil
}
func (s *stubExchange) FetchCandles(context.Context, CandleRequest) ([]market.Candle, error) {
	return nil, nil
}

func TestSyncAccount(t *testing.T) {
	t.Parallel()

	stub := &stubExchange{
		balances:   []broker.Balance{{Asset: "USDT", Free: 1000}},
		openOrders: []broker.OrderAck{{ClientOrderID: "order-1"}},
	}
	snap, err := SyncAccount(context.Background(), stub)
	require.NoError(t, err)
	assert.Len(t, snap.Balances, 1)
	assert.Len(t, snap.OpenOrders, 1)
	assert.Empty(t, snap.Positions)
}

func TestSyncAccountPropagatesError(t *testing.T) {
	t.Parallel()

	stub := &stubExchange{balancesErr: errors.New("boom")}
	_, err := SyncAccount(context.Background(), stub)
	assert.Error(t, err)
}

func TestAccountFromSnapshot(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Balances: []broker.Balance{
		{Asset: "USDT", Free: 1000, Locked: 50},
		{Asset: "BTC", Free: 0.5},
		{Asset: "ETH", Free: 3},
	}}

	account := AccountFromSnapshot(snap, "BTCUSDT", "USDT")
	// Only the free balance counts as spendable cash.
	assert.Equal(t, 1000.0, account.Cash)
	assert.Equal(t, 0.5, account.PositionQty("BTCUSDT"))
	require.Len(t, account.Positions, 1)
}

func TestAccountFromSnapshotExplicitPositionWins(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{
		Balances:  []broker.Balance{{Asset: "USDT", Free: 100}, {Asset: "BTC", Free: 0.5}},
		Positions: []broker.Position{{Symbol: "BTCUSDT", Quantity: 0.75, AvgPrice: 40000}},
	}
	account := AccountFromSnapshot(snap, "BTCUSDT", "USDT")
	require.Len(t, account.Positions, 1)
	assert.Equal(t, 0.75, account.Positions[0].Quantity)
	assert.Equal(t, 40000.0, account.Positions[0].AvgPrice)
}

func TestBaseAsset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BTC", BaseAsset("BTCUSDT", "USDT"))
	assert.Equal(t, "ETH", BaseAsset("ETHBTC", "BTC"))
	assert.Equal(t, "BTCUSDT", BaseAsset("BTCUSDT", "DOGE"))
}

func TestInferCashAsset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "USDT", InferCashAsset("BTCUSDT"))
	assert.Equal(t, "USDC", InferCashAsset("ETHUSDC"))
	assert.Equal(t, "EUR", InferCashAsset("BTCEUR"))
	assert.Equal(t, "BTC", InferCashAsset("ETHBTC"))
	assert.Equal(t, "", InferCashAsset("WEIRDPAIR"))
}
