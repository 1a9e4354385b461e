// Package llm defines a provider-agnostic chat model contract shared by the
// workflow graph and the concrete provider clients.
package llm

import (
	"context"
	"encoding/json"
)

// Role tags a chat message.
type Role string

const (
	RoleHuman  Role = "human"
	RoleSystem Role = "system"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// ToolCall is a model-issued request to execute a named tool with arguments.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Message represents a chat message in a provider-agnostic format.
// ToolCalls is set only on AI messages that request tool execution;
// ToolCallID is set only on tool-result messages.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// HasToolCalls reports whether the message requests tool execution.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Tool declares a callable function the model may request.
// Parameters is a JSON schema object describing the arguments.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// ApplyOptions folds the given options over a default set.
func ApplyOptions(opts ...Option) *Options {
	options := &Options{Temperature: 0.7}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// ChatModel defines the contract for any chat-completion backend.
type ChatModel interface {
	// Chat sends a message history to the model and returns the response.
	Chat(ctx context.Context, history []Message, options ...Option) (Message, error)

	// ChatWithTools additionally declares callable tools; the returned
	// message may carry tool-call requests instead of content.
	ChatWithTools(ctx context.Context, history []Message, tools []Tool, options ...Option) (Message, error)

	// ChatStructured sends a single prompt in JSON mode and returns the raw
	// model output for caller-side validation.
	ChatStructured(ctx context.Context, prompt string, options ...Option) (string, error)
}
