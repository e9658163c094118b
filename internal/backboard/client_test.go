package backboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestNewHTTPClientRequiresAPIKey(t *testing.T) {
	_, err := NewHTTPClient(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewHTTPClient(Config{APIKey: "   "})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCreateAssistantAndThread(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		switch r.URL.Path {
		case "/v1/assistants":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Trade Coach", req["name"])
			json.NewEncoder(w).Encode(map[string]string{"assistant_id": "asst-1"})
		case "/v1/threads":
			json.NewEncoder(w).Encode(map[string]string{"id": "thread-1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	id, err := c.CreateAssistant(context.Background(), "Trade Coach", "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "asst-1", id)

	tid, err := c.CreateThread(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", tid)
}

func TestAddMessageParsesResponse(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/threads/thread-1/messages", r.URL.Path)
		w.Write([]byte(`{
			"status": "requires_action",
			"run_id": "run-1",
			"tool_calls": [{"id": "c1", "function": {"name": "get_trade_summary", "arguments": {}}}]
		}`))
	})

	resp, err := c.AddMessage(context.Background(), "thread-1", "hello")
	require.NoError(t, err)
	assert.True(t, resp.RequiresAction())
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.ToolCalls, 1)
}

func TestSubmitToolOutputs(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/threads/thread-1/runs/run-1/tool_outputs", r.URL.Path)
		var req submitToolOutputsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.ToolOutputs, 1)
		assert.Equal(t, "c1", req.ToolOutputs[0].ToolCallID)
		w.Write([]byte(`{"status": "completed", "content": "final report"}`))
	})

	resp, err := c.SubmitToolOutputs(context.Background(), "thread-1", "run-1",
		[]ToolOutput{{ToolCallID: "c1", Output: "42 trades"}})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, resp.Status)
	assert.Equal(t, "final report", resp.Text)
}

func TestPostSurfacesHTTPStatusInError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.AddMessage(context.Background(), "t", "hi")
	require.Error(t, err)
	// The status code must be visible to the retry layer's classifier.
	assert.Contains(t, err.Error(), "502")
}
