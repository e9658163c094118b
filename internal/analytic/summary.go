package analytic

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// summaryStats is the deterministic fixed-statistics report for the trades
// table. Field order here fixes the JSON key order.
type summaryStats struct {
	TotalTrades int          `json:"total_trades"`
	DateRange   string       `json:"date_range"`
	TotalPnL    float64      `json:"total_pnl"`
	AvgPnL      float64      `json:"avg_pnl_per_trade"`
	PnLStddev   float64      `json:"pnl_stddev"`
	PnLMedian   float64      `json:"pnl_median"`
	WinRatePct  float64      `json:"win_rate_pct"`
	TopAssets   []assetCount `json:"top_assets"`
	BalanceMin  float64      `json:"balance_min"`
	BalanceMax  float64      `json:"balance_max"`
}

type assetCount struct {
	Asset string `json:"asset"`
	Count int    `json:"cnt"`
}

// Summary computes the fixed statistics the summary tool reports: row count,
// timestamp range, P&L distribution, win rate, top assets, and balance range.
// Every aggregate is null-safe; an empty table yields zero values.
func (s *Store) Summary() (string, error) {
	stats := summaryStats{TopAssets: []assetCount{}}

	var n int
	var firstTS, lastTS sql.NullString
	err := s.db.QueryRow(
		"SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM trades",
	).Scan(&n, &firstTS, &lastTS)
	if err != nil {
		return "", fmt.Errorf("count trades: %w", err)
	}
	stats.TotalTrades = n
	stats.DateRange = fmt.Sprintf("%s  to  %s", firstTS.String, lastTS.String)

	pnls, err := s.profitLosses()
	if err != nil {
		return "", err
	}
	if len(pnls) > 0 {
		var sum float64
		wins := 0
		for _, v := range pnls {
			sum += v
			if v > 0 {
				wins++
			}
		}
		mean := sum / float64(len(pnls))
		stats.TotalPnL = round2(sum)
		stats.AvgPnL = round2(mean)
		stats.PnLStddev = round2(sampleStddev(pnls, mean))
		stats.PnLMedian = round2(median(pnls))
		stats.WinRatePct = round1(float64(wins) * 100 / float64(len(pnls)))
	}

	top, err := s.topAssets(5)
	if err != nil {
		return "", err
	}
	stats.TopAssets = top

	var balMin, balMax sql.NullFloat64
	err = s.db.QueryRow("SELECT MIN(balance), MAX(balance) FROM trades").Scan(&balMin, &balMax)
	if err != nil {
		return "", fmt.Errorf("balance range: %w", err)
	}
	stats.BalanceMin = round2(balMin.Float64)
	stats.BalanceMax = round2(balMax.Float64)

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	return string(out), nil
}

func (s *Store) profitLosses() ([]float64, error) {
	rows, err := s.db.Query("SELECT profit_loss FROM trades")
	if err != nil {
		return nil, fmt.Errorf("query profit_loss: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan profit_loss: %w", err)
		}
		if v.Valid {
			out = append(out, v.Float64)
		}
	}
	return out, rows.Err()
}

func (s *Store) topAssets(limit int) ([]assetCount, error) {
	rows, err := s.db.Query(
		"SELECT asset, COUNT(*) AS cnt FROM trades GROUP BY asset ORDER BY cnt DESC, asset ASC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top assets: %w", err)
	}
	defer rows.Close()

	out := []assetCount{}
	for rows.Next() {
		var ac assetCount
		if err := rows.Scan(&ac.Asset, &ac.Count); err != nil {
			return nil, fmt.Errorf("scan top assets: %w", err)
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

func sampleStddev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
