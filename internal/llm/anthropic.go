package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicProvider talks to the Anthropic Messages API. System messages
// are lifted into the top-level system field and tools are declared with
// an input_schema.
type AnthropicProvider struct {
	backend
	host      string
	model     string
	toolModel string
	apiKey    string
	maxTokens int
}

// NewAnthropicProvider creates an Anthropic adapter.
func NewAnthropicProvider(host, model, toolModel, apiKey string, maxTokens int, httpClient *http.Client, logger *slog.Logger) *AnthropicProvider {
	if host == "" {
		host = "https://api.anthropic.com"
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicProvider{
		backend:   newBackend("anthropic", httpClient, logger),
		host:      strings.TrimRight(host, "/"),
		model:     model,
		toolModel: toolModel,
		apiKey:    apiKey,
		maxTokens: maxTokens,
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicResponse struct {
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Call implements Provider.
func (p *AnthropicProvider) Call(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	model := p.model
	if len(tools) > 0 && p.toolModel != "" {
		model = p.toolModel
	}

	system, rest := splitSystem(flattenToolResults(messages))
	req := anthropicRequest{
		Model:       model,
		Messages:    make([]anthropicMessage, 0, len(rest)),
		System:      system,
		MaxTokens:   p.maxTokens,
		Temperature: defaultTemperature,
		Tools:       convertToolsToAnthropic(tools),
	}
	for _, m := range rest {
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	p.logger.Debug("preparing request",
		"model", model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"system_len", len(system),
	)

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
	var resp anthropicResponse
	if err := p.postJSON(ctx, p.host+"/v1/messages", headers, req, &resp); err != nil {
		return nil, err
	}

	out := convertFromAnthropic(&resp)
	p.logger.Debug("response received",
		"model", out.Model,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"tool_calls", len(out.ToolCalls),
	)
	return out, nil
}

func convertToolsToAnthropic(tools []ToolDefinition) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		result = append(result, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaOrEmpty(t.Parameters),
		})
	}
	return result
}

// convertFromAnthropic concatenates text blocks and collects tool_use
// blocks in order.
func convertFromAnthropic(resp *anthropicResponse) *Response {
	var text strings.Builder
	out := &Response{Model: resp.Model}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: ParseArguments(block.Input),
			})
		}
	}
	if len(out.ToolCalls) == 0 {
		out.Text = text.String()
	}
	return out
}
