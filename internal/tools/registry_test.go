package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tradenerd/internal/analytic"
	"tradenerd/internal/trade"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Execute: func(ctx context.Context, args map[string]any) string {
			return "success"
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Name != "test_tool" {
		t.Errorf("got name %q, want %q", got.Name, "test_tool")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:    "dupe",
		Execute: func(ctx context.Context, args map[string]any) string { return "" },
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := reg.Register(tool)
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{
			name:    "empty name",
			tool:    &Tool{Name: "", Execute: func(ctx context.Context, args map[string]any) string { return "" }},
			wantErr: ErrToolNameEmpty,
		},
		{
			name:    "nil execute",
			tool:    &Tool{Name: "no_exec"},
			wantErr: ErrToolExecuteNil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.tool)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil)

	got := d.Dispatch(context.Background(), "made_up_tool", nil)
	if got != "Unknown tool: made_up_tool" {
		t.Errorf("got %q", got)
	}
}

func builtinStore(t *testing.T) *analytic.Store {
	t.Helper()
	trades := []trade.Trade{
		{Timestamp: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Asset: "AAPL", ProfitLoss: 12, Balance: 10012},
	}
	s, err := analytic.Load(trades, nil, analytic.Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuiltinQueryTool(t *testing.T) {
	reg := NewBuiltinRegistry(builtinStore(t))
	d := NewDispatcher(reg, nil)

	got := d.Dispatch(context.Background(), QueryTradeData, map[string]any{
		"sql": "SELECT asset FROM trades",
	})
	if !strings.Contains(got, "AAPL") {
		t.Errorf("query result missing data: %q", got)
	}

	got = d.Dispatch(context.Background(), QueryTradeData, map[string]any{
		"sql": "DROP TABLE trades",
	})
	if got != "Error: only SELECT / WITH / EXPLAIN queries are allowed." {
		t.Errorf("unsafe query not rejected: %q", got)
	}
}

func TestBuiltinSummaryTool(t *testing.T) {
	reg := NewBuiltinRegistry(builtinStore(t))
	d := NewDispatcher(reg, nil)

	got := d.Dispatch(context.Background(), GetTradeSummary, nil)
	if !strings.Contains(got, `"total_trades": 1`) {
		t.Errorf("summary missing total_trades: %q", got)
	}
}

func TestDeclarations(t *testing.T) {
	reg := NewBuiltinRegistry(builtinStore(t))

	decls := reg.Declarations()
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	// Sorted by name: get_trade_summary before query_trade_data.
	if decls[0].Function.Name != GetTradeSummary || decls[1].Function.Name != QueryTradeData {
		t.Errorf("unexpected order: %s, %s", decls[0].Function.Name, decls[1].Function.Name)
	}
	if decls[1].Function.Parameters.Required[0] != "sql" {
		t.Errorf("query tool should require sql")
	}
	if decls[0].Function.Parameters.Properties == nil || decls[0].Function.Parameters.Required == nil {
		t.Errorf("summary tool should declare empty, non-nil parameter sets")
	}
}
