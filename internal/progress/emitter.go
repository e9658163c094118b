// Package progress streams structured audit events to at most one observer
// per session. Emission is decoupled from the orchestration path: publishing
// never blocks and never fails the operation being observed.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type identifies an event on the stream.
type Type string

const (
	// TypeProgress is a named pipeline step with a human message.
	TypeProgress Type = "progress"

	// TypeAgentEvent mirrors one audit entry (action/rationale/observation).
	TypeAgentEvent Type = "agent_event"

	// TypeScores signals model outputs became available.
	TypeScores Type = "scores"

	// TypeResult carries the final text and identifiers.
	TypeResult Type = "result"

	// TypeError reports a failed exchange.
	TypeError Type = "error"

	// TypeDone is the terminal sentinel.
	TypeDone Type = "done"

	// TypeTimeout is synthesized by Subscription.Next when no event arrives
	// within the bounded wait.
	TypeTimeout Type = "timeout"
)

// ObservationLimit caps the observation carried on an agent event.
const ObservationLimit = 200

// DefaultMaxWait bounds Subscription.Next when the caller does not say.
const DefaultMaxWait = 5 * time.Minute

// Event is one entry on a session's progress stream.
type Event struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	// Step and Message describe progress events.
	Step    string `json:"step,omitempty"`
	Message string `json:"message,omitempty"`

	// Action, Rationale, and Observation describe agent events.
	Action      string `json:"action,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
	Observation string `json:"observation,omitempty"`

	// Payload carries scores/result data.
	Payload map[string]any `json:"payload,omitempty"`

	Time time.Time `json:"time"`
}

// Subscription is one observer's bounded event feed.
type Subscription struct {
	sessionID string
	ch        chan Event
	closeOnce sync.Once
}

// Events exposes the raw feed channel. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Next returns the next event, waiting at most maxWait (DefaultMaxWait when
// <= 0). If nothing arrives in time a synthetic timeout event is returned;
// if the subscription is closed, a done sentinel is returned.
func (s *Subscription) Next(ctx context.Context, maxWait time.Duration) Event {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case ev, ok := <-s.ch:
		if !ok {
			return Event{ID: uuid.NewString(), Type: TypeDone, Time: time.Now()}
		}
		return ev
	case <-timer.C:
		return Event{
			ID:      uuid.NewString(),
			Type:    TypeTimeout,
			Message: "no progress events within wait window",
			Time:    time.Now(),
		}
	case <-ctx.Done():
		return Event{ID: uuid.NewString(), Type: TypeDone, Time: time.Now()}
	}
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Emitter fans events out to per-session subscriptions.
type Emitter struct {
	mu         sync.Mutex
	subs       map[string]*Subscription
	bufferSize int
	log        *zap.Logger
}

// NewEmitter creates an emitter; bufferSize defaults to 256 when <= 0.
func NewEmitter(bufferSize int, log *zap.Logger) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
		log:        log,
	}
}

// Subscribe registers the session's observer, replacing (and closing) any
// existing one: a session has zero or one sink.
func (e *Emitter) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		sessionID: sessionID,
		ch:        make(chan Event, e.bufferSize),
	}

	e.mu.Lock()
	if prev, ok := e.subs[sessionID]; ok {
		prev.close()
	}
	e.subs[sessionID] = sub
	e.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes the session's observer, if any.
func (e *Emitter) Unsubscribe(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sub, ok := e.subs[sessionID]; ok {
		delete(e.subs, sessionID)
		sub.close()
	}
}

// Publish delivers an event to the session's observer. No observer means a
// no-op; a full buffer drops the event. Either way the caller proceeds.
func (e *Emitter) Publish(sessionID string, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Type == TypeAgentEvent && len(ev.Observation) > ObservationLimit {
		ev.Observation = ev.Observation[:ObservationLimit]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.subs[sessionID]
	if !ok {
		return
	}
	select {
	case sub.ch <- ev:
	default:
		e.log.Debug("progress event dropped, buffer full",
			zap.String("session_id", sessionID),
			zap.String("type", string(ev.Type)))
	}
}
