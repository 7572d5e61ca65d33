package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, DeepSeek, Qwen, vLLM, ...). Tool-call arguments arrive as a
// JSON-encoded string.
type OpenAIProvider struct {
	backend
	host      string
	model     string
	toolModel string
	apiKey    string
}

// NewOpenAIProvider creates an OpenAI-compatible adapter.
func NewOpenAIProvider(host, model, toolModel, apiKey string, httpClient *http.Client, logger *slog.Logger) *OpenAIProvider {
	if host == "" {
		host = "https://api.openai.com"
	}
	return &OpenAIProvider{
		backend:   newBackend("openai", httpClient, logger),
		host:      strings.TrimRight(host, "/"),
		model:     model,
		toolModel: toolModel,
		apiKey:    apiKey,
	}
}

type openaiRequest struct {
	Model       string           `json:"model"`
	Messages    []openaiMessage  `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments any    `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Call implements Provider.
func (p *OpenAIProvider) Call(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	model := p.model
	if len(tools) > 0 && p.toolModel != "" {
		model = p.toolModel
	}

	msgs := flattenToolResults(messages)
	req := openaiRequest{
		Model:       model,
		Messages:    make([]openaiMessage, 0, len(msgs)),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Tools:       nestedTools(tools),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openaiMessage{Role: m.Role, Content: m.Content})
	}

	p.logger.Debug("preparing request", "model", model, "messages", len(req.Messages), "tools", len(req.Tools))

	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	var resp openaiResponse
	if err := p.postJSON(ctx, p.host+"/v1/chat/completions", headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	msg := resp.Choices[0].Message
	out := &Response{Model: resp.Model}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: ParseArguments(tc.Function.Arguments),
		})
	}
	if len(out.ToolCalls) == 0 && msg.Content != nil {
		out.Text = *msg.Content
	}

	p.logger.Debug("response received", "model", out.Model, "tool_calls", len(out.ToolCalls))
	return out, nil
}
