package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnayoung/llm-verify/internal/answer"
	"github.com/johnayoung/llm-verify/internal/logging"
	"github.com/johnayoung/llm-verify/internal/metrics"
	"github.com/johnayoung/llm-verify/internal/prompt"
	"github.com/johnayoung/llm-verify/internal/provider"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/johnayoung/llm-verify/internal/runner"

// Defaults used when no option overrides them.
const (
	DefaultPacing  = time.Second
	DefaultTimeout = 120 * time.Second
)

// Attempt is one model call and its parsed result. Index is 1-based.
type Attempt struct {
	Index    int           `json:"attempt_index"`
	Raw      string        `json:"raw_response"`
	Parsed   answer.Parsed `json:"parsed"`
	Model    string        `json:"model"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency_ns"`
}

// Result contains the outcome of one run.
// On failure Attempts still holds everything collected before the error.
type Result struct {
	Attempts []Attempt
	Status   Status
	Err      error
}

// Callbacks receives progress notifications from a run. Any field may be nil.
// Callbacks are invoked synchronously from the goroutine calling Run.
type Callbacks struct {
	OnAttemptStart func(index, total int)
	// OnAttemptComplete receives the new attempt and a copy of all attempts so far.
	OnAttemptComplete func(attempt Attempt, attempts []Attempt)
	OnAttemptError    func(index int, err error)
}

// Runner drives a bounded, strictly sequential series of attempts against one model.
type Runner struct {
	provider  provider.Provider
	model     string
	builder   *prompt.Builder
	sampling  Sampling
	pacing    time.Duration
	timeout   time.Duration
	callbacks *Callbacks
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithPacing sets the pause between consecutive attempts.
func WithPacing(d time.Duration) Option {
	return func(r *Runner) { r.pacing = d }
}

// WithTimeout sets the per-attempt timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithSampling overrides the per-attempt sampling parameters.
func WithSampling(s Sampling) Option {
	return func(r *Runner) { r.sampling = s }
}

// WithBuilder sets the prompt builder.
func WithBuilder(b *prompt.Builder) Option {
	return func(r *Runner) { r.builder = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records attempt metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracerProvider creates spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tp.Tracer(tracerName) }
}

// New creates a runner querying model through p.
func New(p provider.Provider, model string, opts ...Option) *Runner {
	r := &Runner{
		provider: p,
		model:    model,
		builder:  prompt.NewBuilder(),
		sampling: DefaultSampling(),
		pacing:   DefaultPacing,
		timeout:  DefaultTimeout,
		logger:   logging.Discard(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithCallbacks returns a copy of the runner that reports progress to cb.
// The receiver is not modified, so one Runner can serve overlapping runs.
func (r *Runner) WithCallbacks(cb *Callbacks) *Runner {
	c := *r
	c.callbacks = cb
	return &c
}

// Validate checks run preconditions without touching the network.
func Validate(question string, total int) error {
	if strings.TrimSpace(question) == "" {
		return &ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if total < 1 {
		return &ValidationError{Field: "attempts", Reason: fmt.Sprintf("must be at least 1, got %d", total)}
	}
	return nil
}

// Run executes total attempts one after another and collects the results.
// The first provider error stops the run: the returned Result has
// StatusFailed, keeps the attempts made so far, and the error is returned too.
// Invalid input yields a *ValidationError and a nil Result.
func (r *Runner) Run(ctx context.Context, question string, total int, attachments ...prompt.Attachment) (*Result, error) {
	if err := Validate(question, total); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "runner.Run", trace.WithAttributes(
		attribute.String("model", r.model),
		attribute.Int("attempts.total", total),
	))
	defer span.End()

	result := &Result{
		Status:   StatusRunning,
		Attempts: make([]Attempt, 0, total),
	}

	r.logger.Info("run started", "model", r.model, "attempts", total, "attachments", len(attachments))
	start := time.Now()

	for i := 1; i <= total; i++ {
		cfg := prompt.AttemptConfig{Index: i, Total: total}

		attempt, err := r.attempt(ctx, question, cfg, attachments)
		if err != nil {
			err = fmt.Errorf("attempt %d of %d: %w", i, total, err)
			result.Status = StatusFailed
			result.Err = err

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("run failed", "attempt", i, "completed", len(result.Attempts), "error_kind", provider.Kind(err), "error", err)
			if r.callbacks != nil && r.callbacks.OnAttemptError != nil {
				r.callbacks.OnAttemptError(i, err)
			}
			return result, err
		}

		result.Attempts = append(result.Attempts, attempt)
		if r.callbacks != nil && r.callbacks.OnAttemptComplete != nil {
			snapshot := make([]Attempt, len(result.Attempts))
			copy(snapshot, result.Attempts)
			r.callbacks.OnAttemptComplete(attempt, snapshot)
		}

		if i < total {
			if err := r.pause(ctx); err != nil {
				err = fmt.Errorf("waiting before attempt %d of %d: %w", i+1, total, err)
				result.Status = StatusFailed
				result.Err = err
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				r.logger.Warn("run interrupted", "completed", len(result.Attempts), "error", err)
				return result, err
			}
		}
	}

	result.Status = StatusCompleted
	r.logger.Info("run completed", "attempts", len(result.Attempts), "elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// attempt builds the prompt, queries the model and parses the reply.
func (r *Runner) attempt(ctx context.Context, question string, cfg prompt.AttemptConfig, attachments []prompt.Attachment) (Attempt, error) {
	ctx, span := r.tracer.Start(ctx, "runner.attempt", trace.WithAttributes(attribute.Int("attempt.index", cfg.Index)))
	defer span.End()

	if r.callbacks != nil && r.callbacks.OnAttemptStart != nil {
		r.callbacks.OnAttemptStart(cfg.Index, cfg.Total)
	}

	text, err := r.builder.Build(question, cfg, attachments)
	if err != nil {
		return Attempt{}, fmt.Errorf("building prompt: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	params := r.sampling.For(cfg.Index)
	r.logger.Debug("attempt started", "attempt", cfg.Index, "temperature", params.Temperature, "max_tokens", params.MaxTokens)

	resp, err := r.provider.Query(ctx, provider.Request{
		Model:       r.model,
		Prompt:      text,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		r.metrics.ObserveAttempt(r.model, provider.Kind(err), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Attempt{}, err
	}
	r.metrics.ObserveAttempt(r.model, "success", resp.Latency)

	parsed := answer.Parse(resp.Content)
	span.SetAttributes(
		attribute.Bool("answer.found", parsed.Answer != ""),
		attribute.String("answer.confidence", parsed.Confidence),
	)
	r.logger.Info("attempt complete",
		"attempt", cfg.Index,
		"latency_ms", resp.Latency.Milliseconds(),
		"answer_found", parsed.Answer != "",
		"confidence", parsed.Confidence,
	)

	return Attempt{
		Index:    cfg.Index,
		Raw:      resp.Content,
		Parsed:   parsed,
		Model:    r.model,
		Provider: resp.Provider,
		Latency:  resp.Latency,
	}, nil
}

// pause waits the pacing interval or until ctx is done.
func (r *Runner) pause(ctx context.Context) error {
	if r.pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.pacing)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
