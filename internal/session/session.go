// Package session owns per-conversation mutable state: message history, the
// audit trail, and the session's analytic store connection, with a durable
// snapshot/restore path so chat survives process restarts.
package session

import (
	"errors"

	"tradenerd/internal/analytic"
	"tradenerd/internal/audit"
	"tradenerd/internal/trade"
)

// ErrNotFound is returned when a session is neither resident nor
// restorable from disk. Callers surface it as a distinct "re-submit your
// data" condition.
var ErrNotFound = errors.New("session not found")

// Session is one conversation thread's state. The caller contract is at
// most one in-flight exchange per session; the state machine is the only
// mutator during an exchange.
type Session struct {
	ID string

	// Messages is the append-only user message history.
	Messages []string

	// Trail is the bounded audit trail.
	Trail *audit.Trail

	// Store is the session's analytic connection; at most one alive per
	// session.
	Store *analytic.Store

	// Trades and Scores are retained for snapshotting.
	Trades []trade.Trade
	Scores trade.ScoreSet
}

// AppendMessage records a user message.
func (s *Session) AppendMessage(msg string) {
	s.Messages = append(s.Messages, msg)
}
