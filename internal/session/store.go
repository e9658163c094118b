package session

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tradenerd/internal/analytic"
	"tradenerd/internal/audit"
	"tradenerd/internal/trade"
)

// Config configures the session store service.
type Config struct {
	// Dir is the durable snapshot directory.
	Dir string

	// HistoryMax bounds each session's audit trail.
	HistoryMax int

	// SQLMaxRows caps tool query output on rebuilt analytic stores.
	SQLMaxRows int
}

// Store is the session registry: resident sessions in memory, snapshots on
// disk. It is an explicit service with injected dependencies, not ambient
// global state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config
	log      *zap.Logger
}

// NewStore creates a session store persisting under cfg.Dir.
func NewStore(cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		log:      log,
	}
}

// Create registers a new session with a freshly loaded analytic store.
// An existing resident session with the same id is replaced and its
// analytic connection closed.
func (s *Store) Create(id string, trades []trade.Trade, scores trade.ScoreSet) (*Session, error) {
	store, err := analytic.Load(trades, scores, analytic.Options{
		MaxRows: s.cfg.SQLMaxRows,
		Logger:  s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("load analytic store: %w", err)
	}

	sess := &Session{
		ID:     id,
		Trail:  audit.NewTrail(s.cfg.HistoryMax),
		Store:  store,
		Trades: trades,
		Scores: scores,
	}

	s.mu.Lock()
	if prev, ok := s.sessions[id]; ok && prev.Store != nil {
		prev.Store.Close()
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info("session created", zap.String("session_id", id), zap.Int("trades", len(trades)))
	return sess, nil
}

// Get returns the resident session, falling back to a durable-storage
// reload before failing with ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	sess, err := s.loadSnapshot(id)
	if err != nil {
		s.log.Debug("session snapshot unavailable", zap.String("session_id", id), zap.Error(err))
		return nil, ErrNotFound
	}

	s.mu.Lock()
	// Another caller may have raced the reload; keep the first one.
	if existing, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		sess.Store.Close()
		return existing, nil
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info("session restored from snapshot", zap.String("session_id", id))
	return sess, nil
}

// Close releases every resident session's analytic connection. The store
// is unusable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for id, sess := range s.sessions {
		if sess.Store != nil {
			if err := sess.Store.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(s.sessions, id)
	}
	return firstErr
}

// Persist snapshots the session to durable storage. Best-effort: a failure
// is logged, never propagated. Losing the ability to resume is acceptable,
// corrupting an in-flight response is not.
func (s *Store) Persist(sess *Session) {
	if err := s.writeSnapshot(sess); err != nil {
		s.log.Warn("could not persist session",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
}
