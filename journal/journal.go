// Package journal records runs, fills and equity snapshots for local
// research queries.
package journal

// RunRecord summarizes one finished backtest or paper run.
type RunRecord struct {
	RunID       string
	Mode        string
	Symbol      string
	Created     int64
	StartTime   int64
	EndTime     int64
	ReturnRate  float64
	MaxDrawdown float64
	WinRate     float64
	TradeCount  int
	Sharpe      float64
	EndingCash  float64
}

// FillRecord is one realized trade within a run.
type FillRecord struct {
	RunID    string
	Time     int64
	Symbol   string
	Side     string
	Price    float64
	Quantity float64
	Fee      float64
}

// EquityRecord is one point of a run's equity curve.
type EquityRecord struct {
	RunID  string
	Time   int64
	Equity float64
}

// Journal persists run history.
type Journal interface {
	RecordRun(RunRecord) error
	RecordFill(FillRecord) error
	RecordEquity(EquityRecord) error
	Close() error
}
