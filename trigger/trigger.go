// Package trigger decides, per bar, whether the strategy should be
// evaluated at all.
package trigger

import "github.com/rustyeddy/tradebot/market"

// Context carries the current bar, the history up to and including it,
// and the evaluation clock (unix seconds).
type Context struct {
	Candle  market.Candle
	History []market.Candle
	Now     int64
}

// Trigger is one independent firing condition. Implementations are pure
// beyond their own fixed parameters.
type Trigger interface {
	ShouldFire(ctx Context) bool
}

// Mode composes multiple triggers.
type Mode int

const (
	Any Mode = iota // OR
	All             // AND
)

// Engine evaluates an ordered list of triggers under a composition
// mode. An empty list never fires.
type Engine struct {
	mode     Mode
	triggers []Trigger
}

func NewEngine(mode Mode, triggers []Trigger) *Engine {
	return &Engine{mode: mode, triggers: triggers}
}

func (e *Engine) ShouldFire(ctx Context) bool {
	if len(e.triggers) == 0 {
		return false
	}
	for _, t := range e.triggers {
		fired := t.ShouldFire(ctx)
		if e.mode == Any && fired {
			return true
		}
		if e.mode == All && !fired {
			return false
		}
	}
	return e.mode == All
}
