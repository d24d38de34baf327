package provider

import (
	"context"
	"strings"
	"time"
)

// Claude models: https://platform.claude.com/docs/en/about-claude/models/overview

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"

	// The Messages API requires max_tokens.
	anthropicDefaultMaxTokens = 4096
)

// Anthropic queries the Claude Messages API.
type Anthropic struct {
	endpoint
}

// NewAnthropic reads the key from ANTHROPIC_API_KEY.
func NewAnthropic(opts ...HTTPOption) (*Anthropic, error) {
	e, err := newEndpoint("anthropic", anthropicBaseURL, []string{"ANTHROPIC_API_KEY"}, opts)
	if err != nil {
		return nil, err
	}
	return &Anthropic{endpoint: e}, nil
}

// Query implements Provider. Text blocks of the reply are concatenated.
func (a *Anthropic) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	temperature := req.Temperature

	var reply struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	err := a.post(ctx, "/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}, messagesRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages:    []chatTurn{{Role: "user", Content: req.Prompt}},
	}, &reply)
	if err != nil {
		return Response{}, err
	}

	var text strings.Builder
	for _, block := range reply.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return Response{Model: req.Model, Content: text.String(), Provider: a.name, Latency: time.Since(start)}, nil
}

type messagesRequest struct {
	Model       string     `json:"model"`
	MaxTokens   int        `json:"max_tokens"`
	Temperature *float64   `json:"temperature,omitempty"`
	Messages    []chatTurn `json:"messages"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
