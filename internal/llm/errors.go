package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nugget/emoroom/internal/httpkit"
)

// ErrMissingCredentials is wrapped by New when the selected backend has
// no API key or token configured.
var ErrMissingCredentials = errors.New("missing credentials")

// APIError reports a non-success HTTP response from a backend. Body is
// truncated to [httpkit.ErrorBodyLimit] bytes.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// newAPIError consumes and closes resp.Body.
func newAPIError(provider string, resp *http.Response) *APIError {
	return &APIError{
		Provider: provider,
		Status:   resp.StatusCode,
		Body:     httpkit.ReadErrorBody(resp.Body, httpkit.ErrorBodyLimit),
	}
}

// unavailable stands in for a backend that could not be constructed, so
// the room still runs and each turn reports why the agent cannot answer.
type unavailable struct {
	name string
	err  error
}

// Unavailable returns a Provider whose every call fails with err.
func Unavailable(name string, err error) Provider {
	return &unavailable{name: name, err: err}
}

func (u *unavailable) Name() string { return u.name }

func (u *unavailable) Call(_ context.Context, _ []Message, _ []ToolDefinition) (*Response, error) {
	return nil, u.err
}
