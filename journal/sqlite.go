package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a file-backed Journal.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO runs
		(run_id, mode, symbol, created, start_time, end_time,
		 return_rate, max_drawdown, win_rate, trade_count, sharpe, ending_cash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Mode, r.Symbol, r.Created, r.StartTime, r.EndTime,
		r.ReturnRate, r.MaxDrawdown, r.WinRate, r.TradeCount, r.Sharpe, r.EndingCash,
	)
	return err
}

func (j *SQLite) RecordFill(f FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills (run_id, time, symbol, side, price, quantity, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.Time, f.Symbol, f.Side, f.Price, f.Quantity, f.Fee,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquityRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (run_id, time, equity) VALUES (?, ?, ?)`,
		e.RunID, e.Time, e.Equity,
	)
	return err
}

// ListRuns returns run summaries ordered by creation, newest first.
func (j *SQLite) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, mode, symbol, created, start_time, end_time,
		       return_rate, max_drawdown, win_rate, trade_count, sharpe, ending_cash
		FROM runs ORDER BY created DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Mode, &r.Symbol, &r.Created, &r.StartTime, &r.EndTime,
			&r.ReturnRate, &r.MaxDrawdown, &r.WinRate, &r.TradeCount, &r.Sharpe, &r.EndingCash); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
