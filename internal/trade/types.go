// Package trade defines the trade-history row and model-score types shared
// by the analytic store, session snapshots, and the agent prompt builder.
package trade

import "time"

// Trade is one closed trade from the trader's uploaded history.
type Trade struct {
	Timestamp  time.Time
	Asset      string
	Side       string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	ProfitLoss float64
	Balance    float64
	Notional   float64
}

// BiasNames are the model identifiers in the order they are reported.
// Each maps to a feature table named "<name>_features".
var BiasNames = []string{"overtrading", "revenge", "loss_aversion"}

// Window is one scored time window produced by a bias model.
type Window struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
	Score float64   `yaml:"score"`
}

// ModelScore carries one bias model's output: the aggregate probability,
// the scored windows, and the preprocessed feature table backing them.
type ModelScore struct {
	AvgScore       float64              `yaml:"avg_score"`
	Windows        []Window             `yaml:"windows"`
	FeatureColumns []string             `yaml:"feature_columns"`
	FeatureRows    []map[string]float64 `yaml:"feature_rows"`
}

// HasFeatures reports whether the score carries a usable feature table.
func (m ModelScore) HasFeatures() bool {
	return len(m.FeatureColumns) > 0 && len(m.FeatureRows) > 0
}

// ScoreSet maps a bias name to its model output.
type ScoreSet map[string]ModelScore

// FillNotional defaults Notional to Quantity*EntryPrice where it is unset.
func FillNotional(trades []Trade) {
	for i := range trades {
		if trades[i].Notional == 0 {
			trades[i].Notional = trades[i].Quantity * trades[i].EntryPrice
		}
	}
}
