package llm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/emoroom/internal/config"
	"github.com/nugget/emoroom/internal/httpkit"
)

// New builds the adapter selected by cfg.Name. Backends that need a key
// or token and have none return an error wrapping ErrMissingCredentials.
// timeout bounds each individual HTTP call.
func New(cfg config.ProviderConfig, timeout time.Duration, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := httpkit.NewClient(timeout)

	switch cfg.Name {
	case config.ProviderCloudflare:
		c := cfg.Cloudflare
		if c.AccountID == "" || c.APIToken == "" {
			return nil, fmt.Errorf("cloudflare: account_id and api_token are required: %w", ErrMissingCredentials)
		}
		return NewCloudflareProvider(c.BaseURL, c.AccountID, c.APIToken, c.Model, c.ToolModel, client, logger), nil

	case config.ProviderOllama:
		c := cfg.Ollama
		return NewOllamaProvider(c.Host, c.Model, c.ToolModel, c.APIKey, client, logger), nil

	case config.ProviderOpenAI:
		c := cfg.OpenAI
		if c.APIKey == "" {
			return nil, fmt.Errorf("openai: api_key is required: %w", ErrMissingCredentials)
		}
		return NewOpenAIProvider(c.Host, c.Model, c.ToolModel, c.APIKey, client, logger), nil

	case config.ProviderGemini:
		c := cfg.Gemini
		if c.APIKey == "" {
			return nil, fmt.Errorf("gemini: api_key is required: %w", ErrMissingCredentials)
		}
		return NewGeminiProvider(c.Host, c.Model, c.ToolModel, c.APIKey, client, logger), nil

	case config.ProviderAnthropic:
		c := cfg.Anthropic
		if c.APIKey == "" {
			return nil, fmt.Errorf("anthropic: api_key is required: %w", ErrMissingCredentials)
		}
		return NewAnthropicProvider(c.Host, c.Model, c.ToolModel, c.APIKey, c.MaxTokens, client, logger), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
