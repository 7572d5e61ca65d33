package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// GeminiProvider talks to the Google Generative Language API. The system
// prompt travels in systemInstruction, the assistant role is called
// "model", and tools are declared as functionDeclarations.
type GeminiProvider struct {
	backend
	host      string
	model     string
	toolModel string
	apiKey    string
}

// NewGeminiProvider creates a Gemini adapter.
func NewGeminiProvider(host, model, toolModel, apiKey string, httpClient *http.Client, logger *slog.Logger) *GeminiProvider {
	if host == "" {
		host = "https://generativelanguage.googleapis.com"
	}
	return &GeminiProvider{
		backend:   newBackend("gemini", httpClient, logger),
		host:      strings.TrimRight(host, "/"),
		model:     model,
		toolModel: toolModel,
		apiKey:    apiKey,
	}
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Tools             []geminiToolSet        `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type geminiToolSet struct {
	FunctionDeclarations []ToolDefinition `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	ModelVersion string `json:"modelVersion"`
	Candidates   []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Call implements Provider.
func (p *GeminiProvider) Call(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	model := p.model
	if len(tools) > 0 && p.toolModel != "" {
		model = p.toolModel
	}

	system, rest := splitSystem(flattenToolResults(messages))
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(rest)),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxTokens,
		},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if len(tools) > 0 {
		decls := make([]ToolDefinition, 0, len(tools))
		for _, t := range tools {
			t.Parameters = schemaOrEmpty(t.Parameters)
			decls = append(decls, t)
		}
		req.Tools = []geminiToolSet{{FunctionDeclarations: decls}}
	}

	p.logger.Debug("preparing request", "model", model, "contents", len(req.Contents), "tools", len(tools))

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.host, url.PathEscape(model))
	headers := map[string]string{"x-goog-api-key": p.apiKey}

	var resp geminiResponse
	if err := p.postJSON(ctx, endpoint, headers, req, &resp); err != nil {
		return nil, err
	}

	out := &Response{Model: resp.ModelVersion}
	if len(resp.Candidates) == 0 {
		return out, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: ParseArguments(part.FunctionCall.Args),
			})
			continue
		}
		text.WriteString(part.Text)
	}
	if len(out.ToolCalls) == 0 {
		out.Text = text.String()
	}

	p.logger.Debug("response received", "model", out.Model, "tool_calls", len(out.ToolCalls))
	return out, nil
}
