package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads candles from a headered CSV file with columns
// time,open,high,low,close,volume. Rows are validated, sorted by
// timestamp (input order breaks ties) and deduplicated; when two rows
// share a timestamp the later row wins.
func LoadCSV(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv open failed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse failed: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	type row struct {
		order  int
		candle Candle
	}
	rows := make([]row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 6 {
			return nil, fmt.Errorf("csv row %d: expected 6 columns, got %d", i+2, len(rec))
		}
		ts, err := ParseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		vals := make([]float64, 5)
		for j := 1; j < 6; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv row %d: bad number %q", i+2, rec[j])
			}
			vals[j-1] = v
		}
		c := Candle{
			Time:   ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		rows = append(rows, row{order: i, candle: c})
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].candle.Time != rows[b].candle.Time {
			return rows[a].candle.Time < rows[b].candle.Time
		}
		return rows[a].order < rows[b].order
	})

	deduped := make([]Candle, 0, len(rows))
	for _, r := range rows {
		if n := len(deduped); n > 0 && deduped[n-1].Time == r.candle.Time {
			deduped[n-1] = r.candle
			continue
		}
		deduped = append(deduped, r.candle)
	}
	return deduped, nil
}

// ParseTime accepts either unix epoch seconds or an RFC3339 timestamp.
func ParseTime(value string) (int64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("time value is empty")
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epoch, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time format %q: %w", s, err)
	}
	return t.Unix(), nil
}
