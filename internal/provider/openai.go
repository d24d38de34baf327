package provider

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAI also serves any chat-completions compatible server (vLLM, Ollama,
// LM Studio, OpenRouter) once the base URL is overridden.
// Model list: https://platform.openai.com/docs/models

// OpenAI implements Provider on top of the go-openai client.
type OpenAI struct {
	name   string
	config openai.ClientConfig
	client *openai.Client
}

// OpenAIOption configures an OpenAI provider.
type OpenAIOption func(*OpenAI)

// WithOpenAIBaseURL sets a custom base URL (useful for proxies or compatible APIs).
// The provider label becomes "openai-compatible".
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) {
		o.config.BaseURL = url
		o.name = "openai-compatible"
	}
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) { o.config.HTTPClient = c }
}

// NewOpenAI creates an OpenAI provider.
// Reads the API key from OPENAI_API_KEY and an optional base URL from OPENAI_BASE_URL.
func NewOpenAI(opts ...OpenAIOption) (*OpenAI, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, &AuthError{Provider: "openai", Reason: "OPENAI_API_KEY environment variable required"}
	}

	o := &OpenAI{
		name:   "openai",
		config: openai.DefaultConfig(apiKey),
	}
	o.config.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		WithOpenAIBaseURL(base)(o)
	}

	for _, opt := range opts {
		opt(o)
	}

	o.client = openai.NewClientWithConfig(o.config)
	return o, nil
}

// Query sends a prompt to an OpenAI model and returns the response.
func (o *OpenAI) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Response{}, o.classify(err)
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return Response{
		Model:    req.Model,
		Content:  content,
		Provider: o.name,
		Latency:  time.Since(start),
	}, nil
}

// ListModels returns the model IDs visible to the configured key, sorted.
func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, o.classify(err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// classify maps go-openai errors onto the provider error types.
func (o *OpenAI) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError(o.name, apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := reqErr.Body
		if len(body) == 0 && reqErr.Err != nil {
			body = []byte(reqErr.Err.Error())
		}
		return statusError(o.name, reqErr.HTTPStatusCode, body)
	}

	return &TransportError{Provider: o.name, Err: err}
}
