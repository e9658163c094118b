package backboard

import (
	"encoding/json"
	"strings"
)

// NormalizeStatus uppercases a wire status and folds hyphen separators so
// "requires-action" and "REQUIRES_ACTION" compare equal.
func NormalizeStatus(s string) Status {
	return Status(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
}

// Wire shapes. Tool calls and run ids may appear at the top level or nested
// under required_action.submit_tool_outputs; both are accepted here so the
// rest of the system only ever sees Response.
type rawResponse struct {
	Status         string             `json:"status"`
	RunID          string             `json:"run_id"`
	Content        json.RawMessage    `json:"content"`
	ToolCalls      []rawToolCall      `json:"tool_calls"`
	RequiredAction *rawRequiredAction `json:"required_action"`
}

type rawRequiredAction struct {
	RunID             string            `json:"run_id"`
	SubmitToolOutputs *rawSubmitOutputs `json:"submit_tool_outputs"`
}

type rawSubmitOutputs struct {
	RunID     string        `json:"run_id"`
	ToolCalls []rawToolCall `json:"tool_calls"`
}

type rawToolCall struct {
	ID         string      `json:"id"`
	ToolCallID string      `json:"tool_call_id"`
	Function   rawFunction `json:"function"`
}

type rawFunction struct {
	Name            string          `json:"name"`
	Arguments       json.RawMessage `json:"arguments"`
	ParsedArguments map[string]any  `json:"parsed_arguments"`
}

// ParseResponse reduces a raw reply body to the normalized Response.
func ParseResponse(body []byte) (*Response, error) {
	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	resp := &Response{
		Status: NormalizeStatus(raw.Status),
		RunID:  extractRunID(&raw),
		Text:   decodeContent(raw.Content),
	}

	for _, tc := range extractToolCalls(&raw) {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   firstNonEmpty(tc.ID, tc.ToolCallID),
			Name: tc.Function.Name,
			Args: decodeArgs(tc.Function),
		})
	}
	return resp, nil
}

func extractRunID(raw *rawResponse) string {
	if raw.RunID != "" {
		return raw.RunID
	}
	if ra := raw.RequiredAction; ra != nil {
		if ra.RunID != "" {
			return ra.RunID
		}
		if ra.SubmitToolOutputs != nil {
			return ra.SubmitToolOutputs.RunID
		}
	}
	return ""
}

func extractToolCalls(raw *rawResponse) []rawToolCall {
	if len(raw.ToolCalls) > 0 {
		return raw.ToolCalls
	}
	if raw.RequiredAction != nil && raw.RequiredAction.SubmitToolOutputs != nil {
		return raw.RequiredAction.SubmitToolOutputs.ToolCalls
	}
	return nil
}

// decodeArgs accepts arguments as a JSON object, a JSON-encoded string, or
// pre-parsed arguments; anything unusable becomes an empty map so a bad
// payload never aborts tool resolution.
func decodeArgs(fn rawFunction) map[string]any {
	if len(fn.ParsedArguments) > 0 {
		return fn.ParsedArguments
	}
	if len(fn.Arguments) == 0 {
		return map[string]any{}
	}

	var asMap map[string]any
	if err := json.Unmarshal(fn.Arguments, &asMap); err == nil && asMap != nil {
		return asMap
	}

	var asString string
	if err := json.Unmarshal(fn.Arguments, &asString); err == nil && asString != "" {
		if err := json.Unmarshal([]byte(asString), &asMap); err == nil && asMap != nil {
			return asMap
		}
	}
	return map[string]any{}
}

// decodeContent renders content as text whether the service sent a plain
// string or a structured payload.
func decodeContent(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString
	}
	return string(content)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
