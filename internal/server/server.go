// Package server exposes the session over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johnayoung/llm-verify/internal/history"
	"github.com/johnayoung/llm-verify/internal/logging"
	"github.com/johnayoung/llm-verify/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 10 * time.Second

// History is the read side of the run log.
type History interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Get(ctx context.Context, id string) (session.State, error)
}

// Server serves the run API.
type Server struct {
	session         *session.Session
	history         History
	gatherer        prometheus.Gatherer
	logger          *slog.Logger
	tracer          trace.TracerProvider
	defaultAttempts int
	router          *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the /v1/history routes.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTracerProvider traces requests with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp }
}

// WithDefaultAttempts sets the attempt count used when a request omits it.
func WithDefaultAttempts(n int) Option {
	return func(s *Server) { s.defaultAttempts = n }
}

// New builds the router for sess.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		session:         sess,
		logger:          logging.Discard(),
		tracer:          otel.GetTracerProvider(),
		defaultAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery(), otelgin.Middleware("llm-verify", otelgin.WithTracerProvider(s.tracer)), requestLogger(s.logger))
	SetupRoutes(s.router, s)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, s *Server) {
	router.GET("/healthz", HealthCheck)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", HandleStartRun(s.session, s.defaultAttempts))
			runs.GET("/current", HandleCurrentRun(s.session))
			runs.GET("/current/events", HandleRunEvents(s.session))
		}
		if s.history != nil {
			v1.GET("/history", HandleListHistory(s.history))
			v1.GET("/history/:id", HandleGetHistory(s.history))
		}
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}
}
