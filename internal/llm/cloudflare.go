package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// CloudflareProvider talks to the Workers AI REST API. Tools are sent in
// the flat {name, description, parameters} shape, and calls carrying
// tools switch to a model that supports function calling.
type CloudflareProvider struct {
	backend
	baseURL   string
	accountID string
	apiToken  string
	model     string
	toolModel string
}

// NewCloudflareProvider creates a Workers AI adapter.
func NewCloudflareProvider(baseURL, accountID, apiToken, model, toolModel string, httpClient *http.Client, logger *slog.Logger) *CloudflareProvider {
	if baseURL == "" {
		baseURL = "https://api.cloudflare.com/client/v4"
	}
	if toolModel == "" {
		toolModel = model
	}
	return &CloudflareProvider{
		backend:   newBackend("cloudflare", httpClient, logger),
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		apiToken:  apiToken,
		model:     model,
		toolModel: toolModel,
	}
}

type cloudflareRequest struct {
	Messages    []cloudflareMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
	Tools       []ToolDefinition    `json:"tools,omitempty"`
}

type cloudflareMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cloudflareResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Response  string `json:"response"`
		ToolCalls []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Arguments any    `json:"arguments"`
		} `json:"tool_calls"`
	} `json:"result"`
}

// Call implements Provider.
func (p *CloudflareProvider) Call(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	model := p.model
	if len(tools) > 0 {
		model = p.toolModel
	}

	msgs := flattenToolResults(messages)
	req := cloudflareRequest{
		Messages:    make([]cloudflareMessage, 0, len(msgs)),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, cloudflareMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range tools {
		t.Parameters = schemaOrEmpty(t.Parameters)
		req.Tools = append(req.Tools, t)
	}

	p.logger.Debug("preparing request", "model", model, "messages", len(req.Messages), "tools", len(req.Tools))

	endpoint := fmt.Sprintf("%s/accounts/%s/ai/run/%s", p.baseURL, p.accountID, model)
	headers := map[string]string{"Authorization": "Bearer " + p.apiToken}

	var resp cloudflareResponse
	if err := p.postJSON(ctx, endpoint, headers, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success && len(resp.Errors) > 0 {
		return nil, fmt.Errorf("cloudflare error %d: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}

	out := &Response{Model: model}
	for _, tc := range resp.Result.ToolCalls {
		if tc.Name == "" {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: ParseArguments(tc.Arguments),
		})
	}
	if len(out.ToolCalls) == 0 {
		out.Text = resp.Result.Response
	}

	p.logger.Debug("response received", "model", model, "tool_calls", len(out.ToolCalls))
	return out, nil
}
