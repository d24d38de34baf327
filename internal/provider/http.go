package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// endpoint is the JSON-over-HTTP plumbing shared by the Anthropic and Google
// backends.
type endpoint struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTP-backed provider.
type HTTPOption func(*endpoint)

// WithBaseURL points the provider at another server, such as a proxy or a test double.
func WithBaseURL(url string) HTTPOption {
	return func(e *endpoint) { e.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *endpoint) { e.client = c }
}

// newEndpoint reads the API key from the first non-empty variable in keyVars.
func newEndpoint(name, baseURL string, keyVars []string, opts []HTTPOption) (endpoint, error) {
	var apiKey string
	for _, v := range keyVars {
		if apiKey = os.Getenv(v); apiKey != "" {
			break
		}
	}
	if apiKey == "" {
		return endpoint{}, &AuthError{
			Provider: name,
			Reason:   strings.Join(keyVars, " or ") + " environment variable required",
		}
	}

	e := endpoint{
		name:    name,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// post sends payload to baseURL+path and decodes a 2xx JSON reply into out.
// Network and read failures become *TransportError; non-2xx statuses become
// *AuthError or *ServiceError.
func (e *endpoint) post(ctx context.Context, path string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", e.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", e.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &TransportError{Provider: e.name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Provider: e.name, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(e.name, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ServiceError{Provider: e.name, StatusCode: resp.StatusCode, Body: "malformed response: " + err.Error()}
	}
	return nil
}
