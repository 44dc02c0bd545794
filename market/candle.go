package market

import (
	"fmt"
	"strconv"
	"strings"
)

// Candle is one OHLCV bar. Time is the bar open in unix seconds.
// Candles are immutable once loaded; the slice that holds them owns them.
type Candle struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate enforces the loader invariants: all prices positive, volume
// non-negative, high/low bracketing open and close.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle at %d: prices must be positive", c.Time)
	}
	maxOC := max(c.Open, c.Close)
	minOC := min(c.Open, c.Close)
	if c.High < maxOC {
		return fmt.Errorf("candle at %d: high must be >= max(open, close)", c.Time)
	}
	if c.Low > minOC {
		return fmt.Errorf("candle at %d: low must be <= min(open, close)", c.Time)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %d: volume must be non-negative", c.Time)
	}
	return nil
}

// ParseInterval converts interval strings like "1m", "15m", "4h" or "1d"
// into seconds.
func ParseInterval(interval string) (int64, error) {
	s := strings.TrimSpace(strings.ToLower(interval))
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid candle interval %q", interval)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid candle interval %q", interval)
	}
	switch s[len(s)-1] {
	case 's':
		return n, nil
	case 'm':
		return n * 60, nil
	case 'h':
		return n * 3600, nil
	case 'd':
		return n * 86400, nil
	}
	return 0, fmt.Errorf("invalid candle interval %q", interval)
}
