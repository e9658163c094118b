package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tradenerd/internal/analytic"
	"tradenerd/internal/audit"
	"tradenerd/internal/trade"
)

const (
	tradesFile = "trades.csv"
	metaFile   = "meta.yaml"
)

// snapshotMeta is the durable companion of the CSV files: conversation
// history, the audit trail, and the feature column order per bias model.
type snapshotMeta struct {
	Messages       []string            `yaml:"user_message_history"`
	Audit          []audit.Entry       `yaml:"investigation_history"`
	FeatureColumns map[string][]string `yaml:"feature_columns"`
}

// safeID maps a session id to a directory name: path separators are
// replaced and the result is capped at 128 characters.
func safeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, "/", "_")
	id = strings.ReplaceAll(id, "\\", "_")
	if len(id) > 128 {
		id = id[:128]
	}
	if id == "" {
		return "unknown"
	}
	return id
}

func (s *Store) sessionDir(id string) string {
	return filepath.Join(s.cfg.Dir, safeID(id))
}

func (s *Store) writeSnapshot(sess *Session) error {
	if s.cfg.Dir == "" {
		return fmt.Errorf("no snapshot directory configured")
	}
	dir := s.sessionDir(sess.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, tradesFile))
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	if err := trade.WriteCSV(f, sess.Trades); err != nil {
		f.Close()
		return fmt.Errorf("write trades: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	featureCols := make(map[string][]string)
	for name, score := range sess.Scores {
		if !score.HasFeatures() {
			continue
		}
		featureCols[name] = score.FeatureColumns
		ff, err := os.Create(filepath.Join(dir, name+"_features.csv"))
		if err != nil {
			return fmt.Errorf("create %s features file: %w", name, err)
		}
		if err := trade.WriteFeatureCSV(ff, score.FeatureColumns, score.FeatureRows); err != nil {
			ff.Close()
			return fmt.Errorf("write %s features: %w", name, err)
		}
		if err := ff.Close(); err != nil {
			return err
		}
	}

	meta := snapshotMeta{
		Messages:       sess.Messages,
		Audit:          sess.Trail.Entries(),
		FeatureColumns: featureCols,
	}
	raw, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), raw, 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

func (s *Store) loadSnapshot(id string) (*Session, error) {
	dir := s.sessionDir(id)

	f, err := os.Open(filepath.Join(dir, tradesFile))
	if err != nil {
		return nil, err
	}
	trades, err := trade.ReadCSV(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}
	var meta snapshotMeta
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}

	scores := make(trade.ScoreSet)
	for name, cols := range meta.FeatureColumns {
		ff, err := os.Open(filepath.Join(dir, name+"_features.csv"))
		if err != nil {
			// A missing feature file is tolerable; the analytic store
			// simply omits that table.
			s.log.Warn("feature snapshot missing",
				zap.String("session_id", id),
				zap.String("model", name))
			continue
		}
		fileCols, rows, err := trade.ReadFeatureCSV(ff)
		ff.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s features: %w", name, err)
		}
		if len(fileCols) > 0 {
			cols = fileCols
		}
		scores[name] = trade.ModelScore{
			FeatureColumns: cols,
			FeatureRows:    rows,
		}
	}

	store, err := analytic.Load(trades, scores, analytic.Options{
		MaxRows: s.cfg.SQLMaxRows,
		Logger:  s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild analytic store: %w", err)
	}

	sess := &Session{
		ID:       id,
		Messages: meta.Messages,
		Trail:    audit.NewTrail(s.cfg.HistoryMax),
		Store:    store,
		Trades:   trades,
		Scores:   scores,
	}
	sess.Trail.Restore(meta.Audit)
	return sess, nil
}
