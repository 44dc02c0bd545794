// Package exchange defines the boundary to a real trading venue and a
// Binance implementation of it.
package exchange

import (
	"context"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// CandleRequest asks for candles in [StartTime, EndTime] (unix ms).
type CandleRequest struct {
	Symbol    string
	Interval  string
	StartTime int64
	EndTime   int64
}

// Exchange is everything the live path needs from a venue.
type Exchange interface {
	PlaceOrder(ctx context.Context, order broker.OrderRequest) (broker.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
	FetchBalances(ctx context.Context) ([]broker.Balance, error)
	FetchPositions(ctx context.Context) ([]broker.Position, error)
	FetchOpenOrders(ctx context.Context) ([]broker.OrderAck, error)
	FetchCandles(ctx context.Context, req CandleRequest) ([]market.Candle, error)
}

// Snapshot is one consistent read of a real account.
type Snapshot struct {
	Balances   []broker.Balance
	Positions  []broker.Position
	OpenOrders []broker.OrderAck
}

// SyncAccount reads balances, positions and open orders in one pass.
func SyncAccount(ctx context.Context, ex Exchange) (*Snapshot, error) {
	balances, err := ex.FetchBalances(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := ex.FetchPositions(ctx)
	if err != nil {
		return nil, err
	}
	openOrders, err := ex.FetchOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Balances: balances, Positions: positions, OpenOrders: openOrders}, nil
}

// AccountFromSnapshot builds the pipeline's account view for one
// symbol: cash is the free balance of cashAsset, the position is the
// free balance of the symbol's base asset when the snapshot reports
// one.
func AccountFromSnapshot(snap *Snapshot, symbol, cashAsset string) broker.Account {
	account := broker.Account{}
	baseAsset := BaseAsset(symbol, cashAsset)
	for _, b := range snap.Balances {
		switch b.Asset {
		case cashAsset:
			account.Cash = b.Free
		case baseAsset:
			if b.Free > 0 {
				account.Positions = append(account.Positions, broker.Position{
					Symbol:   symbol,
					Quantity: b.Free,
				})
			}
		}
	}
	for _, p := range snap.Positions {
		if p.Symbol == symbol && p.Quantity > 0 {
			if existing := account.Position(symbol); existing != nil {
				*existing = p
			} else {
				account.Positions = append(account.Positions, p)
			}
		}
	}
	return account
}

// BaseAsset strips the quote asset suffix from a symbol like BTCUSDT.
func BaseAsset(symbol, cashAsset string) string {
	if len(symbol) > len(cashAsset) && symbol[len(symbol)-len(cashAsset):] == cashAsset {
		return symbol[:len(symbol)-len(cashAsset)]
	}
	return symbol
}

// InferCashAsset guesses the quote asset of a symbol from the common
// stablecoin and fiat suffixes. Empty when nothing matches.
func InferCashAsset(symbol string) string {
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD", "EUR", "BTC", "ETH"} {
		if len(symbol) > len(quote) && symbol[len(symbol)-len(quote):] == quote {
			return quote
		}
	}
	return ""
}
