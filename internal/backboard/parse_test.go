package backboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"requires_action", StatusRequiresAction},
		{"requires-action", StatusRequiresAction},
		{"REQUIRES-ACTION", StatusRequiresAction},
		{"completed", StatusComplete},
		{" failed ", StatusFailed},
		{"", StatusNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeStatus(tt.in), "input %q", tt.in)
	}
}

func TestParseResponseTopLevelToolCalls(t *testing.T) {
	body := []byte(`{
		"status": "requires_action",
		"run_id": "run-1",
		"tool_calls": [
			{"id": "call-1", "function": {"name": "query_trade_data", "arguments": {"sql": "SELECT 1"}}}
		]
	}`)

	resp, err := ParseResponse(body)
	require.NoError(t, err)

	assert.Equal(t, StatusRequiresAction, resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "query_trade_data", resp.ToolCalls[0].Name)
	assert.Equal(t, "SELECT 1", resp.ToolCalls[0].Args["sql"])
}

func TestParseResponseNestedRequiredAction(t *testing.T) {
	body := []byte(`{
		"status": "requires-action",
		"required_action": {
			"submit_tool_outputs": {
				"run_id": "run-9",
				"tool_calls": [
					{"tool_call_id": "call-7", "function": {"name": "get_trade_summary", "arguments": "{}"}}
				]
			}
		}
	}`)

	resp, err := ParseResponse(body)
	require.NoError(t, err)

	assert.Equal(t, StatusRequiresAction, resp.Status)
	assert.Equal(t, "run-9", resp.RunID)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-7", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_trade_summary", resp.ToolCalls[0].Name)
}

func TestParseResponseStringArguments(t *testing.T) {
	body := []byte(`{
		"status": "requires_action",
		"run_id": "r",
		"tool_calls": [
			{"id": "c", "function": {"name": "query_trade_data", "arguments": "{\"sql\": \"SELECT 2\"}"}}
		]
	}`)

	resp, err := ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", resp.ToolCalls[0].Args["sql"])
}

func TestParseResponseGarbageArguments(t *testing.T) {
	body := []byte(`{
		"status": "requires_action",
		"run_id": "r",
		"tool_calls": [
			{"id": "c", "function": {"name": "query_trade_data", "arguments": "not json"}}
		]
	}`)

	resp, err := ParseResponse(body)
	require.NoError(t, err)
	assert.Empty(t, resp.ToolCalls[0].Args)
}

func TestParseResponseFinalText(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"status": "completed", "content": "All done."}`))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, resp.Status)
	assert.Equal(t, "All done.", resp.Text)
	assert.False(t, resp.RequiresAction())
	assert.Empty(t, resp.ToolCalls)
}

func TestParseResponseStructuredContent(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"status": "completed", "content": {"text": "hi"}}`))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, `"text"`)
}
