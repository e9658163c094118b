package trade

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Header is the canonical column order for trade CSV snapshots.
var Header = []string{
	"timestamp", "asset", "side", "quantity", "entry_price",
	"exit_price", "profit_loss", "balance", "notional",
}

// timestampLayouts are accepted on read; writes always use RFC3339 UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// WriteCSV writes trades with a header row in canonical column order.
func WriteCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range trades {
		rec := []string{
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Asset,
			t.Side,
			formatFloat(t.Quantity),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.ProfitLoss),
			formatFloat(t.Balance),
			formatFloat(t.Notional),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a trade CSV with a header row. Column order is taken from
// the header, so snapshots and caller-supplied files both load. A missing
// or empty notional column is defaulted to quantity*entry_price.
func ReadCSV(r io.Reader) ([]Trade, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "asset", "profit_loss"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var trades []Trade
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		line++

		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		ts, err := ParseTimestamp(field("timestamp"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		t := Trade{
			Timestamp:  ts,
			Asset:      field("asset"),
			Side:       field("side"),
			Quantity:   parseFloat(field("quantity")),
			EntryPrice: parseFloat(field("entry_price")),
			ExitPrice:  parseFloat(field("exit_price")),
			ProfitLoss: parseFloat(field("profit_loss")),
			Balance:    parseFloat(field("balance")),
			Notional:   parseFloat(field("notional")),
		}
		if t.Notional == 0 {
			t.Notional = t.Quantity * t.EntryPrice
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// WriteFeatureCSV writes one model's feature table with the given column order.
func WriteFeatureCSV(w io.Writer, columns []string, rows []map[string]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			v, ok := row[col]
			if !ok || math.IsNaN(v) {
				rec[i] = ""
				continue
			}
			rec[i] = formatFloat(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFeatureCSV reads a feature table back. Empty cells are omitted from
// the row map so the store inserts NULL for them.
func ReadFeatureCSV(r io.Reader) ([]string, []map[string]float64, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	var rows []map[string]float64
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]float64, len(header))
		for i, col := range header {
			if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				continue
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// ParseTimestamp accepts the timestamp layouts seen in uploads and snapshots.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
