// Package brain turns the room's conversation into the agent's next
// answer. A turn is at most two provider calls: the first may request
// tools, which are executed in order, and the second answers from their
// results with no tools offered.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/emoroom/internal/events"
	"github.com/nugget/emoroom/internal/llm"
	"github.com/nugget/emoroom/internal/memory"
	"github.com/nugget/emoroom/internal/prompts"
	"github.com/nugget/emoroom/internal/tools"
)

// DefaultCallTimeout bounds a single provider call when Config leaves
// CallTimeout unset.
const DefaultCallTimeout = 60 * time.Second

// Config holds the per-room settings the brain needs.
type Config struct {
	AgentName   string
	Timezone    string
	ToolCalling bool
	CallTimeout time.Duration
}

// Thought is the outcome of one turn. ToolMessages are the tool-role
// entries produced along the way, in execution order; the caller
// persists them before the answer.
type Thought struct {
	Answer       string
	ToolMessages []memory.ChatMessage
}

// Brain runs reasoning turns against one provider.
type Brain struct {
	provider llm.Provider
	registry *tools.Registry
	cfg      Config
	events   *events.Bus
	logger   *slog.Logger
}

// New creates a Brain. registry may be nil, which behaves like an empty
// catalogue; bus may be nil.
func New(provider llm.Provider, registry *tools.Registry, cfg Config, bus *events.Bus, logger *slog.Logger) *Brain {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if registry == nil {
		registry = tools.NewRegistry(logger)
	}
	return &Brain{
		provider: provider,
		registry: registry,
		cfg:      cfg,
		events:   bus,
		logger:   logger.With("component", "brain"),
	}
}

// ProviderName reports the backend this brain calls.
func (b *Brain) ProviderName() string {
	return b.provider.Name()
}

// Think produces the answer for speaker given the context view of the
// room's memory. It always returns a non-empty answer: failures become
// an apologetic answer that carries the error text.
func (b *Brain) Think(ctx context.Context, speaker string, history []memory.ChatMessage) (thought Thought) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("turn panicked", "speaker", speaker, "panic", p)
			thought.Answer = prompts.ErrorAnswer(fmt.Errorf("panic: %v", p))
		}
	}()

	messages := b.buildMessages(speaker, history)

	var catalogue []llm.ToolDefinition
	if b.cfg.ToolCalling {
		catalogue = b.registry.Definitions()
	}

	first, err := b.call(ctx, 1, messages, catalogue)
	if err != nil {
		return Thought{Answer: prompts.ErrorAnswer(err)}
	}
	if len(first.ToolCalls) == 0 {
		return Thought{Answer: b.finalize(first.Text, speaker)}
	}

	toolMessages, results := b.runTools(ctx, first.ToolCalls)

	second := make([]llm.Message, len(messages), len(messages)+1)
	copy(second, messages)
	second = append(second, llm.Message{
		Role:    llm.RoleUser,
		Content: prompts.ToolSummary(results),
	})

	final, err := b.call(ctx, 2, second, nil)
	if err != nil {
		return Thought{Answer: prompts.ErrorAnswer(err), ToolMessages: toolMessages}
	}
	return Thought{Answer: b.finalize(final.Text, speaker), ToolMessages: toolMessages}
}

// buildMessages renders the system prompt followed by history. User
// entries carry their speaker inline so every backend sees who spoke,
// whether or not it supports a name field.
func (b *Brain) buildMessages(speaker string, history []memory.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, llm.Message{
		Role:    llm.RoleSystem,
		Content: prompts.SystemPrompt(b.cfg.AgentName, speaker, b.cfg.ToolCalling),
	})
	for _, m := range history {
		msg := llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == llm.RoleUser && m.Name != "" {
			msg.Content = fmt.Sprintf("[%s]: %s", m.Name, m.Content)
		}
		out = append(out, msg)
	}
	return out
}

func (b *Brain) call(ctx context.Context, pass int, messages []llm.Message, catalogue []llm.ToolDefinition) (*llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	b.logger.Debug("calling provider",
		"provider", b.provider.Name(),
		"pass", pass,
		"messages", len(messages),
		"tools", len(catalogue),
	)

	start := time.Now()
	resp, err := b.provider.Call(callCtx, messages, catalogue)
	if err == nil && resp == nil {
		err = fmt.Errorf("%s returned no response", b.provider.Name())
	}

	data := map[string]any{
		"provider":      b.provider.Name(),
		"pass":          pass,
		"tools_offered": len(catalogue),
		"ok":            err == nil,
		"duration_ms":   time.Since(start).Milliseconds(),
	}
	if err != nil {
		b.logger.Warn("provider call failed", "provider", b.provider.Name(), "pass", pass, "error", err)
		b.events.Emit(events.SourceBrain, events.KindLLMCall, data)
		return nil, fmt.Errorf("%s: %w", b.provider.Name(), err)
	}
	data["tool_calls"] = len(resp.ToolCalls)
	b.events.Emit(events.SourceBrain, events.KindLLMCall, data)
	return resp, nil
}

// runTools executes calls in the order received. Every outcome, success
// or failure, becomes both a tool-role memory entry and a summary line.
func (b *Brain) runTools(ctx context.Context, calls []llm.ToolCall) ([]memory.ChatMessage, []prompts.ToolResult) {
	ctx = tools.WithDefaultTimezone(ctx, b.cfg.Timezone)

	messages := make([]memory.ChatMessage, 0, len(calls))
	results := make([]prompts.ToolResult, 0, len(calls))
	for _, tc := range calls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}

		b.logger.Info("tool call", "tool", tc.Name, "call_id", id)
		b.events.Emit(events.SourceBrain, events.KindToolCall, map[string]any{"tool": tc.Name, "call_id": id})

		start := time.Now()
		output, err := b.registry.Execute(ctx, tc.Name, args)
		if err != nil {
			b.logger.Warn("tool unavailable", "tool", tc.Name, "error", err)
			output = fmt.Sprintf("工具调用失败: %v", err)
		}
		b.events.Emit(events.SourceBrain, events.KindToolDone, map[string]any{
			"tool":        tc.Name,
			"call_id":     id,
			"ok":          err == nil,
			"duration_ms": time.Since(start).Milliseconds(),
		})

		messages = append(messages, memory.ChatMessage{
			Role:       llm.RoleTool,
			Content:    output,
			Name:       tc.Name,
			ToolCallID: id,
			Ephemeral:  b.registry.IsEphemeral(tc.Name),
		})
		results = append(results, prompts.ToolResult{Name: tc.Name, Output: output})
	}
	return messages, results
}

// finalize cleans raw of the agent's and the speaker's name prefixes.
func (b *Brain) finalize(raw, speaker string) string {
	if answer := CleanResponse(raw, b.cfg.AgentName, speaker); answer != "" {
		return answer
	}
	return prompts.EmptyAnswerFallback
}
