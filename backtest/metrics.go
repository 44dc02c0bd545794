package backtest

import "math"

// Metrics are derived from the equity curve and trade tallies,
// recomputed wholesale each run.
type Metrics struct {
	ReturnRate  float64
	MaxDrawdown float64
	WinRate     float64
	TradeCount  int
	Sharpe      float64
}

func computeMetrics(startingEquity float64, curve []EquityPoint, tradeCount, wins, losses int) Metrics {
	m := Metrics{TradeCount: tradeCount}

	if len(curve) > 0 && startingEquity > 0 {
		last := curve[len(curve)-1].Equity
		m.ReturnRate = (last - startingEquity) / startingEquity
	}
	m.MaxDrawdown = maxDrawdown(curve)
	if wins+losses > 0 {
		m.WinRate = float64(wins) / float64(wins+losses)
	}
	m.Sharpe = sharpeRatio(curve)
	return m
}

// maxDrawdown is the largest peak-to-trough decline as a fraction of
// the running peak. 0 for an empty or non-decreasing curve.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	var maxDD float64
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			if dd := (peak - point.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio is mean step return over its population standard
// deviation, scaled by sqrt(step count). Not annualized. Steps whose
// previous equity is non-positive are skipped; fewer than two valid
// steps or zero variance yields 0.
func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev > 0 {
			returns = append(returns, (curve[i].Equity-prev)/prev)
		}
	}
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(len(returns)))
}
