package paper

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/tradebot/backtest"
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// Follow replays closed candles from a live feed through the engine one
// bar at a time, persisting the account after every fill. The seed
// history warms indicator windows but is never traded against. Follow
// returns when the candle channel closes or the context is canceled.
func Follow(ctx context.Context, engine *backtest.Engine, history []market.Candle, candles <-chan market.Candle, initialCash float64, store *Store, log zerolog.Logger) error {
	account, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		account = broker.Account{Cash: initialCash}
	}

	sim, err := backtest.NewSimulator(engine, account, history)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return store.Save(sim.Account())
		case candle, open := <-candles:
			if !open {
				return store.Save(sim.Account())
			}
			trades, err := sim.Step(candle)
			if err != nil {
				return err
			}
			for _, trade := range trades {
				log.Info().
					Str("side", string(trade.Side)).
					Float64("price", trade.Price).
					Float64("quantity", trade.Quantity).
					Float64("fee", trade.Fee).
					Msg("paper fill")
			}
			log.Debug().
				Int64("time", candle.Time).
				Float64("close", candle.Close).
				Float64("equity", sim.Equity(candle.Close)).
				Int("pending", sim.PendingOrders()).
				Msg("bar processed")
			if len(trades) > 0 {
				if err := store.Save(sim.Account()); err != nil {
					return err
				}
			}
		}
	}
}
