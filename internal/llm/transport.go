package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// backend holds what every HTTP adapter shares: its name, client and
// logger. Each adapter embeds one.
type backend struct {
	name       string
	httpClient *http.Client
	logger     *slog.Logger
}

func newBackend(name string, httpClient *http.Client, logger *slog.Logger) backend {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return backend{
		name:       name,
		httpClient: httpClient,
		logger:     logger.With("provider", name),
	}
}

// Name implements Provider.
func (b *backend) Name() string { return b.name }

// postJSON marshals body, POSTs it to url with headers, and decodes a 200
// response into out. Non-200 responses become *APIError.
func (b *backend) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	b.logger.Log(ctx, LevelTrace, "request payload", "url", url, "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", b.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := newAPIError(b.name, resp)
		b.logger.Error("API error", "status", apiErr.Status, "body", apiErr.Body)
		return apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", b.name, err)
	}

	b.logger.Log(ctx, LevelTrace, "response payload", "json", string(data))

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", b.name, err)
	}
	return nil
}
