package paper

import (
	"fmt"

	"github.com/rustyeddy/tradebot/backtest"
	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// Run replays candles through the engine, bracketed by the state store:
// load before, save after. A missing state file starts the account from
// initialCash with no positions.
func Run(engine *backtest.Engine, candles []market.Candle, initialCash float64, store *Store) (*backtest.Result, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("paper mode requires candle data")
	}

	account, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		account = broker.Account{Cash: initialCash}
	}

	result, err := engine.RunWithAccount(candles, account)
	if err != nil {
		return nil, err
	}
	if err := store.Save(result.Account); err != nil {
		return nil, err
	}
	return result, nil
}
