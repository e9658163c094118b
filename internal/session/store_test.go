package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradenerd/internal/audit"
	"tradenerd/internal/trade"
)

func sampleTrades(t *testing.T) []trade.Trade {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	trades := []trade.Trade{
		{Timestamp: base, Asset: "BTC", Side: "buy", Quantity: 1, EntryPrice: 100, ExitPrice: 110, ProfitLoss: 10, Balance: 1010},
		{Timestamp: base.Add(time.Hour), Asset: "ETH", Side: "sell", Quantity: 2, EntryPrice: 50, ExitPrice: 45, ProfitLoss: -10, Balance: 1000},
		{Timestamp: base.Add(2 * time.Hour), Asset: "BTC", Side: "buy", Quantity: 3, EntryPrice: 105, ExitPrice: 112, ProfitLoss: 21, Balance: 1021},
	}
	trade.FillNotional(trades)
	return trades
}

func sampleScores() trade.ScoreSet {
	return trade.ScoreSet{
		"overtrading": trade.ModelScore{
			AvgScore:       0.42,
			FeatureColumns: []string{"window_start", "trade_count", "score"},
			FeatureRows: []map[string]float64{
				{"window_start": 1, "trade_count": 12, "score": 0.6},
				{"window_start": 2, "trade_count": 3, "score": 0.2},
			},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(Config{Dir: t.TempDir(), HistoryMax: 500, SQLMaxRows: 50}, nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetResident(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("sess-1", sampleTrades(t), sampleScores())
	require.NoError(t, err)

	got, err := s.Get("sess-1")
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestGetUnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPersistThenReloadMatchesSummary(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(Config{Dir: dir, HistoryMax: 500, SQLMaxRows: 50}, nil)
	t.Cleanup(func() { s.Close() })

	sess, err := s.Create("reload-me", sampleTrades(t), sampleScores())
	require.NoError(t, err)
	sess.AppendMessage("why did I lose money on tuesdays")
	sess.Trail.Append(audit.Entry{
		Task:        "why did I lose money on tuesdays",
		Action:      "query_trade_data",
		Rationale:   "group pnl by weekday",
		Observation: "Query returned 5 rows",
	})

	wantSummary, err := sess.Store.Summary()
	require.NoError(t, err)

	s.Persist(sess)

	// Fresh store service sharing only the snapshot directory.
	s2 := NewStore(Config{Dir: dir, HistoryMax: 500, SQLMaxRows: 50}, nil)
	t.Cleanup(func() { s2.Close() })
	got, err := s2.Get("reload-me")
	require.NoError(t, err)

	gotSummary, err := got.Store.Summary()
	require.NoError(t, err)
	if diff := cmp.Diff(wantSummary, gotSummary); diff != "" {
		t.Fatalf("summary mismatch after reload (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"why did I lose money on tuesdays"}, got.Messages)
	entries := got.Trail.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "query_trade_data", entries[0].Action)

	// Feature tables survive the round trip.
	out := got.Store.Query("SELECT COUNT(*) AS n FROM overtrading_features")
	assert.Contains(t, out, "1 rows")
}

func TestReloadedSessionIsCachedResident(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(Config{Dir: dir, HistoryMax: 500, SQLMaxRows: 50}, nil)
	t.Cleanup(func() { s.Close() })
	sess, err := s.Create("cached", sampleTrades(t), nil)
	require.NoError(t, err)
	s.Persist(sess)

	s2 := NewStore(Config{Dir: dir, HistoryMax: 500, SQLMaxRows: 50}, nil)
	t.Cleanup(func() { s2.Close() })
	first, err := s2.Get("cached")
	require.NoError(t, err)
	second, err := s2.Get("cached")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestPersistFailureIsSilent(t *testing.T) {
	s := NewStore(Config{Dir: "", HistoryMax: 500, SQLMaxRows: 50}, nil)
	t.Cleanup(func() { s.Close() })
	sess, err := s.Create("no-dir", sampleTrades(t), nil)
	require.NoError(t, err)

	// Must not panic or error out.
	s.Persist(sess)
}

func TestSafeID(t *testing.T) {
	cases := map[string]string{
		"plain":        "plain",
		"a/b\\c":       "a_b_c",
		"../../escape": ".._.._escape",
		"":             "unknown",
		"   ":          "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, safeID(in), "input %q", in)
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, safeID(string(long)), 128)
}

func TestSnapshotFilesOnDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(Config{Dir: dir, HistoryMax: 500, SQLMaxRows: 50}, nil)
	t.Cleanup(func() { s.Close() })
	sess, err := s.Create("files", sampleTrades(t), sampleScores())
	require.NoError(t, err)
	s.Persist(sess)

	base := filepath.Join(dir, "files")
	for _, name := range []string{"trades.csv", "meta.yaml", "overtrading_features.csv"} {
		_, err := os.Stat(filepath.Join(base, name))
		assert.NoError(t, err, "expected %s", name)
	}
}
