package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradenerd/internal/backboard"
	"tradenerd/internal/progress"
	"tradenerd/internal/retry"
	"tradenerd/internal/session"
	"tradenerd/internal/tools"
	"tradenerd/internal/trade"
)

// AnalysisResult is the outcome of a new analysis session.
type AnalysisResult struct {
	SessionID string `json:"session_id"`
	Report    string `json:"report"`
}

// Service is the public conversation API: start an analysis session over a
// trade dataset, then chat against it.
type Service struct {
	client   backboard.Client
	sessions *session.Store
	emitter  *progress.Emitter
	policy   retry.Policy
	caps     Caps
	log      *zap.Logger

	// The remote assistant is shared across sessions and created lazily.
	mu          sync.Mutex
	assistantID string

	sqlMaxRows int
}

// NewService wires the conversation service.
func NewService(client backboard.Client, sessions *session.Store, emitter *progress.Emitter, policy retry.Policy, caps Caps, sqlMaxRows int, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if sqlMaxRows <= 0 {
		sqlMaxRows = 50
	}
	return &Service{
		client:     client,
		sessions:   sessions,
		emitter:    emitter,
		policy:     policy,
		caps:       caps.normalized(),
		log:        log,
		sqlMaxRows: sqlMaxRows,
	}
}

// ensureAssistant creates the shared assistant on first use.
func (s *Service) ensureAssistant(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assistantID != "" {
		return s.assistantID, nil
	}

	id, err := s.client.CreateAssistant(ctx, AssistantName, systemPrompt, tools.BuiltinDeclarations(s.sqlMaxRows))
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	s.assistantID = id
	s.log.Info("assistant created", zap.String("assistant_id", id))
	return id, nil
}

// CreateAnalysisSession loads the dataset, opens a remote thread, runs the
// initial analysis exchange, and persists the resulting session.
func (s *Service) CreateAnalysisSession(ctx context.Context, trades []trade.Trade, scores trade.ScoreSet) (*AnalysisResult, error) {
	return s.createAnalysis(ctx, trades, scores, nil)
}

// CreateAnalysisSessionStreaming is CreateAnalysisSession with a callback
// receiving the session's progress events for the duration of the exchange.
// The callback runs on a separate goroutine and has returned for every
// event by the time this method returns.
func (s *Service) CreateAnalysisSessionStreaming(ctx context.Context, trades []trade.Trade, scores trade.ScoreSet, callback func(progress.Event)) (*AnalysisResult, error) {
	return s.createAnalysis(ctx, trades, scores, callback)
}

func (s *Service) createAnalysis(ctx context.Context, trades []trade.Trade, scores trade.ScoreSet, callback func(progress.Event)) (*AnalysisResult, error) {
	assistantID, err := s.ensureAssistant(ctx)
	if err != nil {
		return nil, err
	}

	threadID, err := s.client.CreateThread(ctx, assistantID)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	sess, err := s.sessions.Create(threadID, trades, scores)
	if err != nil {
		return nil, err
	}

	var g *errgroup.Group
	if callback != nil && s.emitter != nil {
		sub := s.emitter.Subscribe(threadID)
		g = new(errgroup.Group)
		g.Go(func() error {
			for ev := range sub.Events() {
				callback(ev)
			}
			return nil
		})
		defer func() {
			s.emitter.Unsubscribe(threadID)
			g.Wait()
		}()

		s.emitter.Publish(threadID, progress.Event{
			Type:    progress.TypeProgress,
			Step:    "session",
			Message: fmt.Sprintf("Backboard thread created (%s).", threadID),
		})
		if len(scores) > 0 {
			payload := make(map[string]any, len(scores))
			for name, ms := range scores {
				payload[name] = ms.AvgScore
			}
			s.emitter.Publish(threadID, progress.Event{Type: progress.TypeScores, Payload: payload})
		}
	}

	summaryJSON, err := sess.Store.Summary()
	if err != nil {
		return nil, fmt.Errorf("precompute summary: %w", err)
	}
	prompt := buildAnalysisPrompt(trades, scores, summaryJSON)
	sess.AppendMessage(prompt)

	report, err := s.runExchange(ctx, sess, prompt, "Initial analysis report")
	if err != nil {
		if s.emitter != nil {
			s.emitter.Publish(threadID, progress.Event{Type: progress.TypeError, Message: err.Error()})
		}
		return nil, err
	}

	s.sessions.Persist(sess)

	if s.emitter != nil {
		s.emitter.Publish(threadID, progress.Event{
			Type:    progress.TypeResult,
			Payload: map[string]any{"session_id": threadID, "report": report},
		})
		s.emitter.Publish(threadID, progress.Event{Type: progress.TypeDone})
	}
	return &AnalysisResult{SessionID: threadID, Report: report}, nil
}

// Chat sends a follow-up message on an existing session. A session absent
// from memory is reloaded from its snapshot; otherwise session.ErrNotFound.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (string, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	sess.AppendMessage(message)
	text, err := s.runExchange(ctx, sess, message, "Follow-up chat")
	if err != nil {
		return "", err
	}

	s.sessions.Persist(sess)
	return text, nil
}

func (s *Service) runExchange(ctx context.Context, sess *session.Session, message, task string) (string, error) {
	registry := tools.NewBuiltinRegistry(sess.Store)
	dispatcher := tools.NewDispatcher(registry, s.log)
	m := NewMachine(s.client, dispatcher, sess.Trail, s.emitter, s.policy, s.caps, s.log, sess.ID, task)
	return m.Run(ctx, message)
}
