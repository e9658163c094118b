// Package backboard implements the remote assistant protocol: a thin HTTP
// client plus a parsing adapter that normalizes the service's response
// variants into one concrete shape for the rest of the system.
package backboard

import "context"

// Status is the normalized conversation status reported by the remote
// service after each exchange.
type Status string

const (
	// StatusNone means no exchange has produced a status yet.
	StatusNone Status = ""

	// StatusRequiresAction means the remote assistant is blocked on tool
	// outputs for the pending run.
	StatusRequiresAction Status = "REQUIRES_ACTION"

	// StatusComplete means the assistant produced its final text.
	StatusComplete Status = "COMPLETED"

	// StatusFailed means the run failed remotely or was failed locally
	// after a protocol violation.
	StatusFailed Status = "FAILED"
)

// ToolCall is one tool execution request from the remote assistant. ID is
// opaque and must be echoed back exactly once in the matching ToolOutput.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolOutput answers one ToolCall.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Response is the single normalized shape every remote reply is reduced to.
type Response struct {
	Status    Status
	RunID     string
	ToolCalls []ToolCall
	Text      string
}

// RequiresAction reports whether the response is blocked on tool outputs.
func (r *Response) RequiresAction() bool {
	return r != nil && r.Status == StatusRequiresAction
}

// Client is the remote assistant protocol consumed by the orchestration
// layer. Implementations must be safe for use across sessions.
type Client interface {
	// CreateAssistant registers an assistant with a system prompt and tool
	// declarations, returning its identifier.
	CreateAssistant(ctx context.Context, name, systemPrompt string, toolDecls any) (string, error)

	// CreateThread opens a conversation thread for an assistant. The thread
	// identifier doubles as the session identifier.
	CreateThread(ctx context.Context, assistantID string) (string, error)

	// AddMessage appends a user message and runs the assistant.
	AddMessage(ctx context.Context, threadID, content string) (*Response, error)

	// SubmitToolOutputs answers the pending run's tool calls. The output
	// list must cover every requested tool-call identifier.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Response, error)
}
