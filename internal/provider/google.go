package provider

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Gemini models: https://ai.google.dev/gemini-api/docs/models

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Google queries the Gemini generateContent API.
type Google struct {
	endpoint
}

// NewGoogle reads the key from GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewGoogle(opts ...HTTPOption) (*Google, error) {
	e, err := newEndpoint("google", googleBaseURL, []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, opts)
	if err != nil {
		return nil, err
	}
	return &Google{endpoint: e}, nil
}

// Query implements Provider. Only the first candidate is used; a reply
// without candidates yields empty Content.
func (g *Google) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	var reply struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	err := g.post(ctx, "/models/"+url.PathEscape(req.Model)+":generateContent", map[string]string{
		"x-goog-api-key": g.apiKey,
	}, generateRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		Config:   generationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens},
	}, &reply)
	if err != nil {
		return Response{}, err
	}

	var text strings.Builder
	if len(reply.Candidates) > 0 {
		for _, part := range reply.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}

	return Response{Model: req.Model, Content: text.String(), Provider: g.name, Latency: time.Since(start)}, nil
}

type generateRequest struct {
	Contents []geminiContent  `json:"contents"`
	Config   generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}
