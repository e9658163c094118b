// Package agent drives the multi-turn exchange with the remote assistant:
// send a message, resolve requested tool calls locally, submit the outputs,
// repeat until the run reaches a terminal status or the cycle cap.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"tradenerd/internal/audit"
	"tradenerd/internal/backboard"
	"tradenerd/internal/progress"
	"tradenerd/internal/retry"
	"tradenerd/internal/tools"
)

// Caps bounds tool resolution for one exchange.
type Caps struct {
	// MaxToolCallsPerCycle is how many requested calls actually execute per
	// cycle; the excess receive placeholder outputs.
	MaxToolCallsPerCycle int

	// MaxToolCycles bounds submit/re-request round trips per exchange.
	MaxToolCycles int
}

// DefaultCaps mirrors the service defaults.
func DefaultCaps() Caps {
	return Caps{MaxToolCallsPerCycle: 1, MaxToolCycles: 6}
}

func (c Caps) normalized() Caps {
	if c.MaxToolCallsPerCycle <= 0 {
		c.MaxToolCallsPerCycle = 1
	}
	if c.MaxToolCycles <= 0 {
		c.MaxToolCycles = 6
	}
	return c
}

// Machine runs one exchange against an existing remote thread. It is not
// safe for concurrent use; a session has at most one exchange in flight.
type Machine struct {
	client     backboard.Client
	dispatcher *tools.Dispatcher
	trail      *audit.Trail
	emitter    *progress.Emitter
	policy     retry.Policy
	caps       Caps
	log        *zap.Logger

	threadID string
	task     string
	message  string

	status    backboard.Status
	runID     string
	pending   []backboard.ToolCall
	last      *backboard.Response
	cycles    int
	finalText string
	errText   string
}

// NewMachine wires an exchange machine for one session thread.
func NewMachine(client backboard.Client, dispatcher *tools.Dispatcher, trail *audit.Trail, emitter *progress.Emitter, policy retry.Policy, caps Caps, log *zap.Logger, threadID, task string) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		client:     client,
		dispatcher: dispatcher,
		trail:      trail,
		emitter:    emitter,
		policy:     policy,
		caps:       caps.normalized(),
		log:        log,
		threadID:   threadID,
		task:       task,
	}
}

// Status returns the current normalized conversation status.
func (m *Machine) Status() backboard.Status { return m.status }

// Cycles returns how many tool-resolution cycles have completed.
func (m *Machine) Cycles() int { return m.cycles }

// record appends one audit entry and mirrors it to the progress stream.
func (m *Machine) record(action, rationale, observation string) {
	stored := m.trail.Append(audit.Entry{
		Task:        m.task,
		Action:      action,
		Rationale:   rationale,
		Observation: observation,
	})
	if m.emitter != nil {
		m.emitter.Publish(m.threadID, progress.Event{
			Type:        progress.TypeAgentEvent,
			Action:      stored.Action,
			Rationale:   stored.Rationale,
			Observation: stored.Observation,
		})
	}
}

// Step performs exactly one transition. A returned error means the remote
// call itself failed (after retries); protocol violations instead move the
// machine to FAILED with an audited explanation.
func (m *Machine) Step(ctx context.Context) error {
	switch m.status {
	case backboard.StatusNone:
		return m.sendMessage(ctx)
	case backboard.StatusRequiresAction:
		return m.resolveTools(ctx)
	default:
		// Terminal; nothing left to do.
		return nil
	}
}

// Run drives the exchange to completion: one send, then tool-resolution
// cycles until a terminal status or the cycle cap. Protocol violations and
// the cycle cap are reported inside the returned text, not as errors.
func (m *Machine) Run(ctx context.Context, message string) (string, error) {
	m.message = message

	if err := m.Step(ctx); err != nil {
		return "", err
	}
	for m.status == backboard.StatusRequiresAction && m.cycles < m.caps.MaxToolCycles {
		if err := m.Step(ctx); err != nil {
			return "", err
		}
	}

	if m.status == backboard.StatusRequiresAction && m.cycles >= m.caps.MaxToolCycles {
		m.record("Cycle cap reached",
			"Prevent infinite loops / runaway tool usage.",
			fmt.Sprintf("Stopped after %d cycles with status=REQUIRES_ACTION.", m.caps.MaxToolCycles))
		return fmt.Sprintf("%s\n\n---\n**Note:** Tool-resolution stopped after hitting the coded cap of %d cycles.",
			m.bestText(), m.caps.MaxToolCycles), nil
	}
	if m.errText != "" {
		return fmt.Sprintf("%s\n\n---\n**Error:** %s", m.bestText(), m.errText), nil
	}
	return m.bestText(), nil
}

func (m *Machine) bestText() string {
	if m.finalText != "" {
		return m.finalText
	}
	if m.last != nil {
		return m.last.Text
	}
	return ""
}

func (m *Machine) sendMessage(ctx context.Context) error {
	m.record("backboard.add_message",
		"Send the user message to the remote thread and let the model decide whether tools are needed.",
		fmt.Sprintf("Sent message (%d chars).", len(m.message)))

	resp, err := retry.Do(ctx, m.policy, m.log, func(ctx context.Context) (*backboard.Response, error) {
		return m.client.AddMessage(ctx, m.threadID, m.message)
	})
	if err != nil {
		return err
	}
	m.observeResponse(resp, "Backboard response received",
		"Capture model status and any requested tool calls to drive the next loop iteration.",
		fmt.Sprintf("status=%s; run_id=%s; tool_calls=%d",
			orNone(string(resp.Status)), orNone(resp.RunID), len(resp.ToolCalls)))
	return nil
}

func (m *Machine) resolveTools(ctx context.Context) error {
	calls := m.pending
	if len(calls) == 0 {
		m.fail("Backboard returned REQUIRES_ACTION but no tool calls were found.",
			"Cannot resolve tool calls without tool_call objects.")
		return nil
	}

	limit := min(len(calls), m.caps.MaxToolCallsPerCycle)
	if len(calls) > limit {
		m.record("Tool-call cap enforced",
			"Execute a bounded number of tool calls per cycle; excess are deferred.",
			fmt.Sprintf("Requested %d tool calls; executing first %d.", len(calls), limit))
	}

	outputs := make([]backboard.ToolOutput, 0, len(calls))
	for _, tc := range calls[:limit] {
		if tc.ID == "" {
			m.record("Skip tool call (missing id)",
				"Cannot submit tool output without a valid tool_call_id.",
				"Skipped one tool call.")
			continue
		}

		args, _ := json.Marshal(tc.Args)
		m.record("Execute tool: "+toolName(tc),
			"Model requested this tool call; executing to obtain evidence from the trade dataset.",
			fmt.Sprintf("tool_call_id=%s; args=%s", tc.ID, args))

		out := m.dispatcher.Dispatch(ctx, tc.Name, tc.Args)

		m.record("Tool result: "+toolName(tc),
			"Record the observation so the investigation trace is auditable.",
			out)

		outputs = append(outputs, backboard.ToolOutput{ToolCallID: tc.ID, Output: out})
	}

	// The protocol rejects partial submissions: every requested id needs an
	// output, so deferred calls get placeholders.
	if len(outputs) < len(calls) {
		for _, tc := range calls[len(outputs):] {
			if tc.ID == "" {
				continue
			}
			outputs = append(outputs, backboard.ToolOutput{
				ToolCallID: tc.ID,
				Output: fmt.Sprintf("[Cap reached: only first %d tool calls executed this cycle.] "+
					"Use get_trade_summary or query_trade_data in a follow-up if needed.",
					m.caps.MaxToolCallsPerCycle),
			})
		}
	}

	runID := m.runID
	if runID == "" && m.last != nil {
		runID = m.last.RunID
	}
	if runID == "" {
		m.fail("Missing run_id for submit_tool_outputs.",
			"Backboard requires a run_id to accept tool outputs.")
		return nil
	}

	m.record("backboard.submit_tool_outputs",
		"Return tool observations to the model so it can continue reasoning and produce the final response.",
		fmt.Sprintf("Submitting %d tool outputs; run_id=%s.", len(outputs), runID))

	resp, err := retry.Do(ctx, m.policy, m.log, func(ctx context.Context) (*backboard.Response, error) {
		return m.client.SubmitToolOutputs(ctx, m.threadID, runID, outputs)
	})
	if err != nil {
		return err
	}
	m.cycles++

	m.observeResponse(resp, "Backboard response received (post-tools)",
		"Decide whether another tool-resolution loop is required.",
		fmt.Sprintf("cycle=%d; status=%s; tool_calls=%d",
			m.cycles, orNone(string(resp.Status)), len(resp.ToolCalls)))
	return nil
}

// observeResponse folds a normalized response into machine state.
func (m *Machine) observeResponse(resp *backboard.Response, action, rationale, observation string) {
	m.last = resp
	m.status = resp.Status
	if resp.RunID != "" {
		m.runID = resp.RunID
	}
	if resp.RequiresAction() {
		m.pending = resp.ToolCalls
	} else {
		m.pending = nil
		m.finalText = resp.Text
	}
	m.record(action, rationale, observation)
}

func (m *Machine) fail(errText, rationale string) {
	m.errText = errText
	m.status = backboard.StatusFailed
	if m.last != nil {
		m.finalText = m.last.Text
	}
	m.record("Error", rationale, errText)
}

func toolName(tc backboard.ToolCall) string {
	if tc.Name == "" {
		return "(unknown)"
	}
	return tc.Name
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
