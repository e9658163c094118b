package backboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public Backboard endpoint.
const DefaultBaseURL = "https://api.backboard.io"

// Config configures the HTTP client.
type Config struct {
	APIKey  string
	BaseURL string

	// Provider and Model override the assistant's default model per message
	// when non-empty.
	Provider string
	Model    string

	// Timeout is a transport-level safety net; per-attempt deadlines come
	// from the caller's context.
	Timeout time.Duration

	Logger *zap.Logger
}

// HTTPClient implements Client over the Backboard REST surface.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	provider   string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client. A missing API key is a configuration
// error surfaced here, before any remote call is attempted.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &HTTPClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		provider:   cfg.Provider,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Logger,
	}, nil
}

type createAssistantRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Tools        any    `json:"tools,omitempty"`
}

type createAssistantResponse struct {
	AssistantID string `json:"assistant_id"`
	ID          string `json:"id"`
}

// CreateAssistant registers an assistant and returns its identifier.
func (c *HTTPClient) CreateAssistant(ctx context.Context, name, systemPrompt string, toolDecls any) (string, error) {
	body, err := c.post(ctx, "/v1/assistants", createAssistantRequest{
		Name:         name,
		SystemPrompt: systemPrompt,
		Tools:        toolDecls,
	})
	if err != nil {
		return "", err
	}

	var out createAssistantResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode assistant response: %w", err)
	}
	id := firstNonEmpty(out.AssistantID, out.ID)
	if id == "" {
		return "", fmt.Errorf("assistant response carried no identifier")
	}
	return id, nil
}

type createThreadRequest struct {
	AssistantID string `json:"assistant_id"`
}

type createThreadResponse struct {
	ThreadID string `json:"thread_id"`
	ID       string `json:"id"`
}

// CreateThread opens a thread scoped to the assistant.
func (c *HTTPClient) CreateThread(ctx context.Context, assistantID string) (string, error) {
	body, err := c.post(ctx, "/v1/threads", createThreadRequest{AssistantID: assistantID})
	if err != nil {
		return "", err
	}

	var out createThreadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode thread response: %w", err)
	}
	id := firstNonEmpty(out.ThreadID, out.ID)
	if id == "" {
		return "", fmt.Errorf("thread response carried no identifier")
	}
	return id, nil
}

type addMessageRequest struct {
	Content     string `json:"content"`
	Stream      bool   `json:"stream"`
	LLMProvider string `json:"llm_provider,omitempty"`
	ModelName   string `json:"model_name,omitempty"`
}

// AddMessage appends a user message and returns the normalized run result.
func (c *HTTPClient) AddMessage(ctx context.Context, threadID, content string) (*Response, error) {
	path := fmt.Sprintf("/v1/threads/%s/messages", url.PathEscape(threadID))
	body, err := c.post(ctx, path, addMessageRequest{
		Content:     content,
		LLMProvider: c.provider,
		ModelName:   c.model,
	})
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("decode message response: %w", err)
	}
	return resp, nil
}

type submitToolOutputsRequest struct {
	ToolOutputs []ToolOutput `json:"tool_outputs"`
}

// SubmitToolOutputs answers the pending run's tool calls.
func (c *HTTPClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Response, error) {
	path := fmt.Sprintf("/v1/threads/%s/runs/%s/tool_outputs",
		url.PathEscape(threadID), url.PathEscape(runID))
	body, err := c.post(ctx, path, submitToolOutputsRequest{ToolOutputs: outputs})
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("decode tool outputs response: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Debug("backboard request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		// The status code stays in the message so the retry layer can
		// classify 502/503/504 and rate limits from the text.
		return nil, fmt.Errorf("backboard request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
