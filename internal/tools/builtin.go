package tools

import (
	"context"
	"fmt"
	"strings"

	"tradenerd/internal/analytic"
)

// Built-in tool names.
const (
	QueryTradeData  = "query_trade_data"
	GetTradeSummary = "get_trade_summary"
)

const summaryDescription = "Return high-level statistics about the trader's uploaded " +
	"data: total trades, date range, P&L distribution, most " +
	"traded assets, balance range, and win rate."

func queryDescription(maxRows int) string {
	return "Run a read-only SQL query against the trader's data. Tables: " +
		"'trades' (timestamp, asset, side, quantity, entry_price, exit_price, " +
		"profit_loss, balance, notional); 'overtrading_features', " +
		"'revenge_features', 'loss_aversion_features' (ML feature rows with " +
		"probability columns e.g. overtrading_prob, revenge_prob, loss_aversion_prob). " +
		fmt.Sprintf("Returns a text table of results (max %d rows).", maxRows)
}

func querySchema() Schema {
	return Schema{
		Required: []string{"sql"},
		Properties: map[string]Property{
			"sql": {Type: "string", Description: "A valid read-only SQL query."},
		},
	}
}

// BuiltinDeclarations returns the wire declarations for the built-in tools
// without binding them to a session store; used at assistant creation.
func BuiltinDeclarations(maxRows int) []Declaration {
	summary := &Tool{Name: GetTradeSummary, Description: summaryDescription,
		Schema: Schema{Required: []string{}, Properties: map[string]Property{}}}
	query := &Tool{Name: QueryTradeData, Description: queryDescription(maxRows),
		Schema: querySchema()}
	return []Declaration{summary.Declare(), query.Declare()}
}

// NewBuiltinRegistry returns a registry holding the two built-in tools,
// bound to one session's analytic store.
func NewBuiltinRegistry(store *analytic.Store) *Registry {
	r := NewRegistry()
	r.MustRegister(newQueryTool(store))
	r.MustRegister(newSummaryTool(store))
	return r
}

func newQueryTool(store *analytic.Store) *Tool {
	return &Tool{
		Name:        QueryTradeData,
		Description: queryDescription(store.MaxRows()),
		Schema:      querySchema(),
		Execute: func(_ context.Context, args map[string]any) string {
			sqlText, _ := args["sql"].(string)
			return store.Query(strings.TrimSpace(sqlText))
		},
	}
}

func newSummaryTool(store *analytic.Store) *Tool {
	return &Tool{
		Name:        GetTradeSummary,
		Description: summaryDescription,
		Schema: Schema{
			Required:   []string{},
			Properties: map[string]Property{},
		},
		Execute: func(_ context.Context, _ map[string]any) string {
			out, err := store.Summary()
			if err != nil {
				// Keep the unified text channel: the model sees the failure
				// and can fall back to query_trade_data.
				return fmt.Sprintf("Summary error: %v", err)
			}
			return out
		},
	}
}
