// Package llm translates the room's generic conversation into the request
// shape of one LLM backend and normalizes the reply back. Every backend
// sits behind the Provider interface; nothing outside this package sees a
// backend's wire format.
package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles. These four are the only roles a conversation carries.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the generic outbound conversation.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`         // speaker, or tool name for tool results
	ToolCallID string `json:"tool_call_id,omitempty"` // tool results only
}

// ToolCall is a backend's request to run a named tool. Arguments is never
// nil once it leaves an adapter.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition is the generic function-calling description of a tool.
// Parameters is a JSON-schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is the normalized result of one provider call: either text,
// or one or more tool calls (in which case Text is usually empty).
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
}

// Provider is implemented by every backend adapter.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Call sends one request. A nil or empty tools slice means the
	// request carries no tool catalogue.
	Call(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)
}

// Sampling parameters shared by every adapter. Replies are short chat
// turns, not essays.
const (
	defaultTemperature = 0.6
	defaultMaxTokens   = 256
)
