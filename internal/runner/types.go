package runner

import "fmt"

// Status is the lifecycle state of a run: Idle → Running → {Completed, Failed}.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StatusIdle
	case "running":
		*s = StatusRunning
	case "completed":
		*s = StatusCompleted
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidationError rejects a run before any model call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SamplingParams are the generation settings for one attempt.
type SamplingParams struct {
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens" validate:"gte=0"`
}

// Sampling picks parameters by attempt index. The first attempt runs cooler
// than the re-derivations that follow it.
type Sampling struct {
	First SamplingParams `yaml:"first_attempt" json:"first_attempt"`
	Later SamplingParams `yaml:"later_attempts" json:"later_attempts"`
}

// DefaultSampling returns the built-in sampling settings.
func DefaultSampling() Sampling {
	return Sampling{
		First: SamplingParams{Temperature: 0.3, MaxTokens: 2048},
		Later: SamplingParams{Temperature: 0.7, MaxTokens: 2048},
	}
}

// For returns the parameters for the 1-based attempt index.
func (s Sampling) For(index int) SamplingParams {
	if index <= 1 {
		return s.First
	}
	return s.Later
}
