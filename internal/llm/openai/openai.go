package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"webrag/internal/llm"
)

// Client is an OpenAI-compatible chat-completions client implementing the
// ChatModel interface.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
}

// Config configures the OpenAI-compatible chat client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// Ensure Client implements ChatModel.
var _ llm.ChatModel = (*Client)(nil)

// NewClient creates a new chat client using the provided configuration.
// A missing API key is a configuration error detected here, before any
// workflow step runs.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 120 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: 3,
	}, nil
}

// --- Request/Response structs (internal to this package) ---

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireToolFunc `json:"function"`
}

type wireToolFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireToolDecl `json:"function"`
}

type wireToolDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []wireMessage  `json:"messages"`
	Tools          []wireTool     `json:"tools,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// --- Interface implementation ---

func (c *Client) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (llm.Message, error) {
	return c.complete(ctx, history, nil, nil, opts...)
}

func (c *Client) ChatWithTools(ctx context.Context, history []llm.Message, tools []llm.Tool, opts ...llm.Option) (llm.Message, error) {
	wireTools := make([]wireTool, len(tools))
	for i, t := range tools {
		wireTools[i] = wireTool{
			Type: "function",
			Function: wireToolDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return c.complete(ctx, history, wireTools, nil, opts...)
}

func (c *Client) ChatStructured(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	history := []llm.Message{{Role: llm.RoleHuman, Content: prompt}}
	format := map[string]any{"type": "json_object"}
	msg, err := c.complete(ctx, history, nil, format, opts...)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (c *Client) complete(ctx context.Context, history []llm.Message, tools []wireTool, format map[string]any, opts ...llm.Option) (llm.Message, error) {
	options := llm.ApplyOptions(opts...)

	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	messages := make([]wireMessage, len(history))
	for i, msg := range history {
		messages[i] = toWire(msg)
	}

	reqPayload := chatRequest{
		Model:          model,
		Messages:       messages,
		Tools:          tools,
		Temperature:    options.Temperature,
		MaxTokens:      options.MaxTokens,
		ResponseFormat: format,
	}

	body, err := c.post(ctx, "/chat/completions", reqPayload)
	if err != nil {
		return llm.Message{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return llm.Message{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return llm.Message{}, fmt.Errorf("chat completion failed: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, errors.New("chat completion returned no choices")
	}
	return fromWire(resp.Choices[0].Message), nil
}

// post sends a JSON request, retrying transient failures with backoff and
// honouring Retry-After on 429 responses.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				if werr := sleepCtx(ctx, retryDelay(attempt)); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("chat completions failed: %s", resp.Status)
			if attempt < c.maxRetries {
				if werr := sleepCtx(ctx, delay); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, lastErr
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("chat completions failed: %s: %s", resp.Status, string(body))
		}
		return body, nil
	}
	return nil, lastErr
}

func toWire(msg llm.Message) wireMessage {
	role := "user"
	switch msg.Role {
	case llm.RoleSystem:
		role = "system"
	case llm.RoleAI:
		role = "assistant"
	case llm.RoleTool:
		role = "tool"
	}
	out := wireMessage{Role: role, Content: msg.Content, ToolCallID: msg.ToolCallID}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireToolFunc{
				Name:      tc.Name,
				Arguments: string(tc.Args),
			},
		})
	}
	return out
}

func fromWire(msg wireMessage) llm.Message {
	out := llm.Message{Role: llm.RoleAI, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
