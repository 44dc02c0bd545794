// Package storage persists run history to Postgres. It is optional:
// nothing in the pipeline requires it unless a DSN is configured.
package storage

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rustyeddy/tradebot/backtest"
	"github.com/rustyeddy/tradebot/internal/id"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	symbol TEXT NOT NULL,
	created TIMESTAMPTZ NOT NULL DEFAULT now(),
	params JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id TEXT PRIMARY KEY REFERENCES runs(run_id),
	return_rate DOUBLE PRECISION NOT NULL,
	max_drawdown DOUBLE PRECISION NOT NULL,
	win_rate DOUBLE PRECISION NOT NULL,
	trade_count INTEGER NOT NULL,
	sharpe DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	time BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	fee DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS run_equity (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	time BIGINT NOT NULL,
	equity DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_accounts (
	run_id TEXT PRIMARY KEY REFERENCES runs(run_id),
	cash DOUBLE PRECISION NOT NULL,
	positions JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades(run_id, time);
CREATE INDEX IF NOT EXISTS idx_run_equity_run ON run_equity(run_id, time);
`

// RunParams is the configuration snapshot stored with each run.
type RunParams struct {
	Symbol         string  `json:"symbol"`
	OrderType      string  `json:"order_type"`
	FeeRate        float64 `json:"fee_rate"`
	SlippageBps    int     `json:"slippage_bps"`
	MAWindow       int     `json:"ma_window"`
	BuyThreshold   float64 `json:"buy_threshold"`
	SellThreshold  float64 `json:"sell_threshold"`
	BuyCashRatio   float64 `json:"buy_cash_ratio"`
	SellPosRatio   float64 `json:"sell_pos_ratio"`
	RebuyCashRatio float64 `json:"rebuy_cash_ratio"`
	InitialCash    float64 `json:"initial_cash"`
}

// Postgres stores runs through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens and pings a pool for the DSN.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// EnsureSchema creates the tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema execute failed: %w", err)
	}
	return nil
}

// SaveRun persists a run with its metrics, trades and equity curve,
// returning the generated run id. Paper runs additionally store the
// ending account.
func (p *Postgres) SaveRun(ctx context.Context, mode string, params RunParams, result *backtest.Result) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("params serialize failed: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("db transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	runID := id.New()
	if _, err := tx.Exec(ctx,
		`INSERT INTO runs (run_id, mode, symbol, params) VALUES ($1, $2, $3, $4)`,
		runID, mode, params.Symbol, paramsJSON,
	); err != nil {
		return "", fmt.Errorf("insert runs failed: %w", err)
	}

	m := result.Metrics
	if _, err := tx.Exec(ctx,
		`INSERT INTO run_metrics (run_id, return_rate, max_drawdown, win_rate, trade_count, sharpe)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, m.ReturnRate, m.MaxDrawdown, m.WinRate, m.TradeCount, m.Sharpe,
	); err != nil {
		return "", fmt.Errorf("insert run_metrics failed: %w", err)
	}

	for _, trade := range result.Trades {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_trades (run_id, time, symbol, side, price, quantity, fee)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, trade.Time, trade.Symbol, string(trade.Side), trade.Price, trade.Quantity, trade.Fee,
		); err != nil {
			return "", fmt.Errorf("insert run_trades failed: %w", err)
		}
	}
	for _, point := range result.EquityCurve {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_equity (run_id, time, equity) VALUES ($1, $2, $3)`,
			runID, point.Time, point.Equity,
		); err != nil {
			return "", fmt.Errorf("insert run_equity failed: %w", err)
		}
	}

	if mode == "paper" {
		positionsJSON, err := json.Marshal(result.Account.Positions)
		if err != nil {
			return "", fmt.Errorf("positions serialize failed: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO paper_accounts (run_id, cash, positions) VALUES ($1, $2, $3)`,
			runID, result.Account.Cash, positionsJSON,
		); err != nil {
			return "", fmt.Errorf("insert paper_accounts failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("db commit failed: %w", err)
	}
	return runID, nil
}
