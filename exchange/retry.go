package exchange

import (
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/tradebot/telemetry"
)

// Retryer wraps boundary calls in bounded exponential backoff with
// jitter. Only transient failures are retried; everything else
// propagates immediately. The sleep and jitter sources are injectable
// so tests can assert exact bounds.
type Retryer struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	JitterPct  int

	Sleep  func(time.Duration)
	Jitter func(max time.Duration) time.Duration
	Log    zerolog.Logger
	Stats  *telemetry.Registry
}

// NewRetryer returns a retryer with the default policy: 3 retries,
// 500ms base, 8s cap, 20% jitter.
func NewRetryer(log zerolog.Logger, stats *telemetry.Registry) *Retryer {
	return &Retryer{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		JitterPct:  20,
		Sleep:      time.Sleep,
		Jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max) + 1))
		},
		Log:   log,
		Stats: stats,
	}
}

// Do runs action until it succeeds, fails non-transiently, or the
// attempt budget is spent. The final error is returned unwrapped.
func (r *Retryer) Do(label string, action func() error) error {
	for attempt := 0; ; attempt++ {
		err := action()
		if err == nil {
			return nil
		}
		if attempt >= r.MaxRetries || !IsTransient(err) {
			if r.Stats != nil {
				r.Stats.IncError()
				if attempt >= r.MaxRetries {
					r.Stats.IncRetryExhausted()
				}
			}
			return err
		}
		if r.Stats != nil {
			r.Stats.IncRetry()
		}
		delay := r.delay(attempt)
		r.Log.Warn().
			Str("label", label).
			Int("attempt", attempt+1).
			Int("max_retries", r.MaxRetries).
			Dur("delay", delay).
			Err(err).
			Msg("transient failure, retrying")
		r.Sleep(delay)
	}
}

// delay is base<<attempt capped at MaxDelay, plus jitter in
// [0, delay*JitterPct/100], capped again at MaxDelay.
func (r *Retryer) delay(attempt int) time.Duration {
	delay := r.BaseDelay
	if attempt >= 63 {
		delay = r.MaxDelay
	} else {
		delay = r.BaseDelay << uint(attempt)
		if delay > r.MaxDelay || delay <= 0 {
			delay = r.MaxDelay
		}
	}
	jitterMax := delay * time.Duration(r.JitterPct) / 100
	if r.Jitter != nil && jitterMax > 0 {
		delay += r.Jitter(jitterMax)
	}
	if delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}

// IsTransient reports whether an error looks like a temporary network
// or rate-limit condition worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429",
		"too many requests",
		"timed out",
		"timeout",
		"connection reset",
		"broken pipe",
		"http request failed",
		"response status: 5",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
