// Package telemetry collects run counters and renders them in
// Prometheus text exposition format. The registry is an explicitly
// owned object so each test run starts from zero.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Mode labels the pipeline that produced a run.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
)

// LastRun is the most recent run's headline metrics.
type LastRun struct {
	ReturnRate  float64
	MaxDrawdown float64
	WinRate     float64
	Sharpe      float64
}

// Registry accumulates counters for the life of one process (or test).
// All methods are safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	startTime int64
	now       func() int64

	backtestRuns   uint64
	paperRuns      uint64
	liveRuns       uint64
	trades         uint64
	signals        uint64
	ordersPlanned  uint64
	liveOrdersSent uint64
	triggerFires   uint64
	retries        uint64
	retryExhausted uint64
	errors         uint64

	lastRunTime int64
	lastRunMode Mode
	lastRun     LastRun
}

// NewRegistry builds a registry with the wall clock; tests may replace
// the clock with SetClock before recording.
func NewRegistry() *Registry {
	r := &Registry{now: func() int64 { return time.Now().Unix() }}
	r.startTime = r.now()
	return r
}

// SetClock swaps the time source and restamps the start time.
func (r *Registry) SetClock(now func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	r.startTime = now()
}

// Reset zeroes every counter.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clock := r.now
	*r = Registry{now: clock, startTime: clock()}
}

// RecordBacktest tallies a finished backtest run.
func (r *Registry) RecordBacktest(last LastRun, trades int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backtestRuns++
	r.trades += uint64(trades)
	r.setLastRun(ModeBacktest, last)
}

// RecordPaper tallies a finished paper run.
func (r *Registry) RecordPaper(last LastRun, trades int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paperRuns++
	r.trades += uint64(trades)
	r.setLastRun(ModePaper, last)
}

// RecordLive tallies one live evaluation cycle.
func (r *Registry) RecordLive(triggered bool, signals, planned, sent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveRuns++
	r.signals += uint64(signals)
	r.ordersPlanned += uint64(planned)
	r.liveOrdersSent += uint64(sent)
	if triggered {
		r.triggerFires++
	}
	r.lastRunTime = r.now()
	r.lastRunMode = ModeLive
}

func (r *Registry) IncRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func (r *Registry) IncRetryExhausted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryExhausted++
}

func (r *Registry) IncError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func (r *Registry) setLastRun(mode Mode, last LastRun) {
	r.lastRunTime = r.now()
	r.lastRunMode = mode
	r.lastRun = last
}

// Render emits the counters as Prometheus text exposition.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	counter := func(name, help string, value uint64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
	}
	gauge := func(name, help, value string) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", name, help, name, name, value)
	}

	gauge("tradebot_up", "Process up", "1")
	gauge("tradebot_uptime_seconds", "Process uptime in seconds",
		fmt.Sprintf("%d", r.now()-r.startTime))
	counter("tradebot_backtest_runs_total", "Total backtest runs", r.backtestRuns)
	counter("tradebot_paper_runs_total", "Total paper runs", r.paperRuns)
	counter("tradebot_live_runs_total", "Total live runs", r.liveRuns)
	counter("tradebot_trades_total", "Total trades", r.trades)
	counter("tradebot_signals_total", "Total signals", r.signals)
	counter("tradebot_orders_planned_total", "Total planned orders", r.ordersPlanned)
	counter("tradebot_live_orders_sent_total", "Total live orders sent", r.liveOrdersSent)
	counter("tradebot_trigger_fire_total", "Trigger fires", r.triggerFires)
	counter("tradebot_retry_total", "Transient retries", r.retries)
	counter("tradebot_retry_exhausted_total", "Retries exhausted", r.retryExhausted)
	counter("tradebot_errors_total", "Total errors", r.errors)
	gauge("tradebot_last_run_timestamp", "Last run timestamp (epoch seconds)",
		fmt.Sprintf("%d", r.lastRunTime))
	for _, mode := range []Mode{ModeBacktest, ModePaper, ModeLive} {
		v := "0"
		if r.lastRunMode == mode {
			v = "1"
		}
		gauge("tradebot_last_run_mode_"+string(mode), "Last run mode "+string(mode)+" (1/0)", v)
	}
	gauge("tradebot_last_return_rate", "Last return rate", formatFloat(r.lastRun.ReturnRate))
	gauge("tradebot_last_max_drawdown", "Last max drawdown", formatFloat(r.lastRun.MaxDrawdown))
	gauge("tradebot_last_win_rate", "Last win rate", formatFloat(r.lastRun.WinRate))
	gauge("tradebot_last_sharpe", "Last sharpe", formatFloat(r.lastRun.Sharpe))
	return b.String()
}

// WriteFile renders the registry to path, creating parent directories.
func (r *Registry) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("metrics dir create failed: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		return fmt.Errorf("metrics write failed: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
