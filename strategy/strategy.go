// Package strategy turns bar context into directional signals.
package strategy

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// Context is everything a strategy may inspect on one tick.
type Context struct {
	Candle  market.Candle
	History []market.Candle
	Account *broker.Account
	Now     int64
}

// Strategy produces zero or more signals for a bar. Implementations may
// keep internal counters across calls.
type Strategy interface {
	OnTick(ctx Context) []broker.Signal
}

// Params configures the built-in strategies.
type Params struct {
	MAWindow      int
	BuyThreshold  float64
	SellThreshold float64
}

// ByName builds a registered strategy.
func ByName(name string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "noop", "none":
		return Noop{}, nil
	case "threshold", "":
		return NewThreshold(params.MAWindow, params.BuyThreshold, params.SellThreshold), nil
	}
	return nil, fmt.Errorf("unknown strategy %q (supported: noop, threshold)", name)
}

// Noop emits no signals.
type Noop struct{}

func (Noop) OnTick(ctx Context) []broker.Signal { return nil }
