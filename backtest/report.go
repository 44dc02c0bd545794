package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
)

type tradeReport struct {
	Time     int64    `json:"time"`
	Symbol   string   `json:"symbol"`
	Side     string   `json:"side"`
	Price    float64  `json:"price"`
	Quantity float64  `json:"quantity"`
	Fee      float64  `json:"fee"`
	PnL      *float64 `json:"pnl"`
}

type metricsReport struct {
	ReturnRate  float64 `json:"return_rate"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	TradeCount  int     `json:"trade_count"`
	Sharpe      float64 `json:"sharpe"`
}

type equityReport struct {
	Time   int64   `json:"time"`
	Equity float64 `json:"equity"`
}

type costsReport struct {
	TotalFees  float64 `json:"total_fees"`
	AverageFee float64 `json:"average_fee"`
}

type report struct {
	Metrics     metricsReport  `json:"metrics"`
	EndingCash  float64        `json:"ending_cash"`
	Trades      []tradeReport  `json:"trades"`
	EquityCurve []equityReport `json:"equity_curve"`
	Costs       costsReport    `json:"costs"`
}

// WriteReport writes a run result to path as json or csv; "none" is a
// no-op.
func WriteReport(path, format string, result *Result) error {
	switch format {
	case "json":
		return writeJSON(path, result)
	case "csv":
		return writeCSV(path, result)
	case "none":
		return nil
	}
	return fmt.Errorf("output format must be none, json, or csv, got %q", format)
}

func writeJSON(path string, result *Result) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(buildReport(result), "", "  ")
	if err != nil {
		return fmt.Errorf("json serialization failed: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("report write failed: %w", err)
	}
	return nil
}

func writeCSV(path string, result *Result) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv open failed: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "symbol", "side", "price", "quantity", "fee", "pnl"}); err != nil {
		return fmt.Errorf("csv write failed: %w", err)
	}
	for i, trade := range result.Trades {
		pnl := ""
		if i < len(result.TradePnLs) && result.TradePnLs[i] != nil {
			pnl = strconv.FormatFloat(*result.TradePnLs[i], 'f', -1, 64)
		}
		row := []string{
			strconv.FormatInt(trade.Time, 10),
			trade.Symbol,
			string(trade.Side),
			strconv.FormatFloat(trade.Price, 'f', -1, 64),
			strconv.FormatFloat(trade.Quantity, 'f', -1, 64),
			strconv.FormatFloat(trade.Fee, 'f', -1, 64),
			pnl,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv write failed: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv flush failed: %w", err)
	}
	return nil
}

func buildReport(result *Result) report {
	var totalFees float64
	for _, trade := range result.Trades {
		totalFees += trade.Fee
	}
	var averageFee float64
	if len(result.Trades) > 0 {
		averageFee = totalFees / float64(len(result.Trades))
	}

	trades := make([]tradeReport, len(result.Trades))
	for i, trade := range result.Trades {
		var pnl *float64
		if i < len(result.TradePnLs) {
			pnl = result.TradePnLs[i]
		}
		trades[i] = tradeReport{
			Time:     trade.Time,
			Symbol:   trade.Symbol,
			Side:     string(trade.Side),
			Price:    trade.Price,
			Quantity: trade.Quantity,
			Fee:      trade.Fee,
			PnL:      pnl,
		}
	}
	curve := make([]equityReport, len(result.EquityCurve))
	for i, point := range result.EquityCurve {
		curve[i] = equityReport{Time: point.Time, Equity: point.Equity}
	}
	return report{
		Metrics: metricsReport{
			ReturnRate:  result.Metrics.ReturnRate,
			MaxDrawdown: result.Metrics.MaxDrawdown,
			WinRate:     result.Metrics.WinRate,
			TradeCount:  result.Metrics.TradeCount,
			Sharpe:      result.Metrics.Sharpe,
		},
		EndingCash:  result.Account.Cash,
		Trades:      trades,
		EquityCurve: curve,
		Costs:       costsReport{TotalFees: totalFees, AverageFee: averageFee},
	}
}

// PrintResult writes a human-readable run summary.
func PrintResult(w io.Writer, symbol string, result *Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Symbol:        %s\n", symbol)
	fmt.Fprintf(w, "Trades:        %d\n", result.Metrics.TradeCount)
	fmt.Fprintf(w, "Return:        %.2f%%\n", result.Metrics.ReturnRate*100)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", result.Metrics.MaxDrawdown*100)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", result.Metrics.WinRate*100)
	fmt.Fprintf(w, "Sharpe:        %.4f\n", result.Metrics.Sharpe)
	fmt.Fprintf(w, "Ending Cash:   %.2f\n", result.Account.Cash)
	for _, p := range result.Account.Positions {
		fmt.Fprintf(w, "Position:      %s qty=%.8f avg=%.8f\n", p.Symbol, p.Quantity, p.AvgPrice)
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir failed: %w", err)
	}
	return nil
}
