// Package analytic provides the per-session in-memory SQL engine the agent's
// tools run against. One primary "trades" table plus up to one feature table
// per bias model, built once at load and read-only afterwards.
package analytic

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"tradenerd/internal/trade"
)

// DefaultMaxRows caps how many result rows a tool query returns.
const DefaultMaxRows = 50

// readOnlyKeywords is the statement allow-list. Anything else is rejected
// before it reaches the engine.
var readOnlyKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures a Store at load time.
type Options struct {
	// MaxRows caps query output; DefaultMaxRows when <= 0.
	MaxRows int
	Logger  *zap.Logger
}

// Store is one session's analytic database.
type Store struct {
	db      *sql.DB
	maxRows int
	log     *zap.Logger
}

// Load builds an in-memory database with the trades table and a
// "<name>_features" table for every score entry that carries feature rows.
func Load(trades []trade.Trade, scores trade.ScoreSet, opts Options) (*Store, error) {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// database/sql opens one in-memory database per connection; a second
	// connection would see empty tables.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, maxRows: opts.MaxRows, log: opts.Logger}
	if err := s.loadTrades(trades); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadFeatures(scores); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Debug("analytic store loaded",
		zap.Int("trades", len(trades)),
		zap.Int("score_models", len(scores)))
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MaxRows returns the configured result cap.
func (s *Store) MaxRows() int {
	return s.maxRows
}

func (s *Store) loadTrades(trades []trade.Trade) error {
	const schema = `CREATE TABLE trades (
		timestamp  TEXT NOT NULL,
		asset      TEXT NOT NULL,
		side       TEXT,
		quantity   REAL,
		entry_price REAL,
		exit_price  REAL,
		profit_loss REAL,
		balance     REAL,
		notional    REAL
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO trades VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		notional := t.Notional
		if notional == 0 {
			notional = t.Quantity * t.EntryPrice
		}
		_, err := stmt.Exec(
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Asset, t.Side, t.Quantity, t.EntryPrice,
			t.ExitPrice, t.ProfitLoss, t.Balance, notional,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) loadFeatures(scores trade.ScoreSet) error {
	for _, name := range trade.BiasNames {
		model, ok := scores[name]
		if !ok || !model.HasFeatures() {
			continue
		}
		cols := make([]string, 0, len(model.FeatureColumns))
		for _, c := range model.FeatureColumns {
			if identifierPattern.MatchString(c) {
				cols = append(cols, c)
			} else {
				s.log.Warn("skipping feature column with unusable name",
					zap.String("table", name), zap.String("column", c))
			}
		}
		if len(cols) == 0 {
			s.log.Warn("skipping feature table with no usable columns", zap.String("table", name))
			continue
		}

		table := name + "_features"
		defs := make([]string, len(cols))
		for i, c := range cols {
			defs[i] = fmt.Sprintf("%q REAL", c)
		}
		create := fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", "))
		if _, err := s.db.Exec(create); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		insert := fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, placeholders)
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin %s load: %w", table, err)
		}
		stmt, err := tx.Prepare(insert)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("prepare %s insert: %w", table, err)
		}
		for _, row := range model.FeatureRows {
			args := make([]any, len(cols))
			for i, c := range cols {
				if v, ok := row[c]; ok {
					args[i] = v
				}
			}
			if _, err := stmt.Exec(args...); err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("insert %s row: %w", table, err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s load: %w", table, err)
		}
	}
	return nil
}

// Query executes a read-only statement and always answers with text: the
// rendered result set, a rejection, or the engine's error message. Tools
// feed this straight back to the model so it can self-correct.
func (s *Store) Query(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 || !readOnlyKeywords[strings.ToUpper(fields[0])] {
		return "Error: only SELECT / WITH / EXPLAIN queries are allowed."
	}

	rows, err := s.db.Query(trimmed)
	if err != nil {
		return fmt.Sprintf("SQL error: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Sprintf("SQL error: %v", err)
	}

	var rendered [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Sprintf("SQL error: %v", err)
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = formatValue(v)
		}
		rendered = append(rendered, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Sprintf("SQL error: %v", err)
	}

	n := len(rendered)
	if n == 0 {
		return "(no rows returned)"
	}
	if n > s.maxRows {
		return fmt.Sprintf("Query returned %d rows (showing first %d):\n%s",
			n, s.maxRows, renderTable(cols, rendered[:s.maxRows]))
	}
	return renderTable(cols, rendered)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.6f", x), "0"), ".")
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// renderTable right-aligns every column to its widest cell.
func renderTable(cols []string, rows [][]string) string {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			for pad := widths[i] - len(cell); pad > 0; pad-- {
				b.WriteByte(' ')
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}
	writeRow(cols)
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
