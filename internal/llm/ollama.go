package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// OllamaProvider talks to an Ollama server. Self-hosted servers get the
// /api/chat endpoint with native tool calling; the hosted ollama.com
// service is driven through /api/generate with a single rendered prompt
// and never receives tools.
type OllamaProvider struct {
	backend
	host      string
	model     string
	toolModel string
	apiKey    string
}

// NewOllamaProvider creates an Ollama adapter. toolModel may be empty.
func NewOllamaProvider(host, model, toolModel, apiKey string, httpClient *http.Client, logger *slog.Logger) *OllamaProvider {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaProvider{
		backend:   newBackend("ollama", httpClient, logger),
		host:      strings.TrimRight(host, "/"),
		model:     model,
		toolModel: toolModel,
		apiKey:    apiKey,
	}
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  ollamaOptions    `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content   string `json:"content"`
		ToolCalls []struct {
			ID       string `json:"id"`
			Function struct {
				Name      string `json:"name"`
				Arguments any    `json:"arguments"` // object from Ollama, string from some proxies
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

func (p *OllamaProvider) headers() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// isCloud reports whether the host is the hosted ollama.com service.
func (p *OllamaProvider) isCloud() bool {
	return strings.Contains(p.host, "ollama.com")
}

// Call implements Provider.
func (p *OllamaProvider) Call(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	if p.isCloud() {
		return p.generate(ctx, messages)
	}
	return p.chat(ctx, messages, tools)
}

func (p *OllamaProvider) chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	model := p.model
	if len(tools) > 0 && p.toolModel != "" {
		model = p.toolModel
	}

	msgs := flattenToolResults(messages)
	req := ollamaChatRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(msgs)),
		Tools:    nestedTools(tools),
		Options:  ollamaOptions{Temperature: defaultTemperature, NumPredict: defaultMaxTokens},
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	p.logger.Debug("preparing request", "model", model, "messages", len(req.Messages), "tools", len(req.Tools))

	var resp ollamaChatResponse
	if err := p.postJSON(ctx, p.host+"/api/chat", p.headers(), req, &resp); err != nil {
		return nil, err
	}

	out := &Response{Model: resp.Model}
	for i, tc := range resp.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: ParseArguments(tc.Function.Arguments),
		})
	}

	// Smaller local models often print the call instead of using tool_calls.
	if len(out.ToolCalls) == 0 && len(tools) > 0 {
		out.ToolCalls = parseTextToolCalls(resp.Message.Content)
	}
	if len(out.ToolCalls) == 0 {
		out.Text = resp.Message.Content
	}

	p.logger.Debug("response received", "model", out.Model, "tool_calls", len(out.ToolCalls))
	return out, nil
}

func (p *OllamaProvider) generate(ctx context.Context, messages []Message) (*Response, error) {
	req := ollamaGenerateRequest{
		Model:  p.model,
		Prompt: singlePrompt(flattenToolResults(messages)),
	}

	p.logger.Debug("preparing generate request", "model", p.model, "prompt_len", len(req.Prompt))

	var resp ollamaGenerateResponse
	if err := p.postJSON(ctx, p.host+"/api/generate", p.headers(), req, &resp); err != nil {
		return nil, err
	}
	return &Response{Text: resp.Response, Model: resp.Model}, nil
}
