package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/johnayoung/llm-verify/internal/config"
	"github.com/johnayoung/llm-verify/internal/history"
	"github.com/johnayoung/llm-verify/internal/logging"
	"github.com/johnayoung/llm-verify/internal/metrics"
	"github.com/johnayoung/llm-verify/internal/provider"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/johnayoung/llm-verify/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// app carries the configuration and shared services of one command.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
}

// newApp loads config, lets the command apply its flags, then sets up
// logging and tracing. interactive raises the default log level to warn so
// logs do not interleave with the progress display.
func newApp(cmd *cobra.Command, g *globalFlags, interactive bool, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	levelName := cfg.Log.Level
	if g.logLevel != "" {
		levelName = g.logLevel
	} else if interactive && levelName == "info" {
		levelName = "warn"
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:  level,
		JSON:   g.logJSON || cfg.Log.JSON,
		Output: cmd.ErrOrStderr(),
	})

	shutdown, err := telemetry.Setup(telemetry.Config{
		Exporter:    cfg.Telemetry.Exporter,
		ServiceName: "llm-verify",
		Version:     getVersion(),
		Output:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

// close flushes pending spans.
func (a *app) close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// newRunner opens the provider for the configured model and builds a runner.
func (a *app) newRunner(m *metrics.Metrics) (*runner.Runner, error) {
	p, err := provider.Open(a.cfg.Model, a.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("initializing provider for %s: %w", a.cfg.Model, err)
	}
	if a.cfg.RequestsPerMinute > 0 {
		p = provider.Limited(p, provider.PerMinute(a.cfg.RequestsPerMinute))
	}

	return runner.New(p, a.cfg.Model,
		runner.WithPacing(a.cfg.Pacing),
		runner.WithTimeout(a.cfg.Timeout),
		runner.WithSampling(a.cfg.Sampling),
		runner.WithLogger(a.logger),
		runner.WithMetrics(m),
		runner.WithTracerProvider(otel.GetTracerProvider()),
	), nil
}

func (a *app) openHistory() (*history.Store, error) {
	store, err := history.Open(a.cfg.HistoryPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("history opened", "path", a.cfg.HistoryPath)
	return store, nil
}
