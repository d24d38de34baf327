package provider

import (
	"fmt"
	"sort"
)

// Backend identifies which API a model is served by.
type Backend int

const (
	BackendOpenAI Backend = iota
	BackendAnthropic
	BackendGoogle
)

func (b Backend) String() string {
	switch b {
	case BackendOpenAI:
		return "openai"
	case BackendAnthropic:
		return "anthropic"
	case BackendGoogle:
		return "google"
	default:
		return "unknown"
	}
}

// Known models mapped to their backends.
// Add new models here as they become available.
var knownModels = map[string]Backend{
	// OpenAI
	"gpt-5.2-2025-12-11": BackendOpenAI,
	"gpt-5-mini":         BackendOpenAI,
	"gpt-4.1":            BackendOpenAI,
	"gpt-4o":             BackendOpenAI,
	"gpt-4o-mini":        BackendOpenAI,

	// Anthropic
	"claude-sonnet-4-5": BackendAnthropic,
	"claude-haiku-4-5":  BackendAnthropic,
	"claude-opus-4-5":   BackendAnthropic,

	// Google
	"gemini-3-pro-preview": BackendGoogle,
	"gemini-2.5-pro":       BackendGoogle,
	"gemini-2.5-flash":     BackendGoogle,
}

// KnownModel pairs a model name with its backend.
type KnownModel struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
}

// KnownModels lists the built-in model table sorted by backend, then name.
func KnownModels() []KnownModel {
	out := make([]KnownModel, 0, len(knownModels))
	for name, b := range knownModels {
		out = append(out, KnownModel{Name: name, Backend: b.String()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Backend == out[j].Backend {
			return out[i].Name < out[j].Name
		}
		return out[i].Backend < out[j].Backend
	})
	return out
}

// Open builds the provider serving model. When baseURL is set the model is
// sent to that OpenAI-compatible endpoint regardless of the built-in table.
func Open(model, baseURL string) (Provider, error) {
	if baseURL != "" {
		return NewOpenAI(WithOpenAIBaseURL(baseURL))
	}

	backend, ok := knownModels[model]
	if !ok {
		names := make([]string, 0, len(knownModels))
		for m := range knownModels {
			names = append(names, m)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown model %q; available models: %v (or set a base URL for an OpenAI-compatible server)", model, names)
	}

	switch backend {
	case BackendOpenAI:
		return NewOpenAI()
	case BackendAnthropic:
		return NewAnthropic()
	case BackendGoogle:
		return NewGoogle()
	default:
		return nil, fmt.Errorf("unhandled backend for model %s", model)
	}
}
