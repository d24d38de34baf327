// Package session owns the single active run and its observable state.
//
// Starting a run supersedes the previous one: its context is cancelled and
// anything it reports afterwards is discarded, so a late model response can
// never leak into the new run's attempt list.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/llm-verify/internal/consensus"
	"github.com/johnayoung/llm-verify/internal/logging"
	"github.com/johnayoung/llm-verify/internal/metrics"
	"github.com/johnayoung/llm-verify/internal/prompt"
	"github.com/johnayoung/llm-verify/internal/runner"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 16

// State is a snapshot of the current run. Treat it as read-only.
type State struct {
	RunID      string            `json:"run_id,omitempty"`
	Question   string            `json:"question,omitempty"`
	Model      string            `json:"model,omitempty"`
	Status     runner.Status     `json:"status"`
	Total      int               `json:"total_attempts"`
	Attempts   []runner.Attempt  `json:"attempts"`
	Consensus  *consensus.Result `json:"consensus"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
}

// Request describes a run to start.
type Request struct {
	Question    string              `json:"question" validate:"required"`
	Attempts    int                 `json:"attempts" validate:"gte=1,lte=20"`
	Attachments []prompt.Attachment `json:"attachments,omitempty"`
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, st State) error
}

// Session coordinates runs for one consumer. Safe for concurrent use.
type Session struct {
	runner    *runner.Runner
	model     string
	consensus consensus.Options
	recorder  Recorder
	observer  *runner.Callbacks
	logger    *slog.Logger
	metrics   *metrics.Metrics
	newID     func() string

	mu      sync.Mutex
	gen     uint64
	state   State
	cancel  context.CancelFunc
	subs    map[int]chan State
	nextSub int
}

// NewRunID returns a sortable, unique run identifier such as
// 20260112-143052-1f0c9a2e.
func NewRunID() string {
	return time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Option configures a Session.
type Option func(*Session)

// WithConsensus sets the aggregation options.
func WithConsensus(o consensus.Options) Option {
	return func(s *Session) { s.consensus = o }
}

// WithRecorder persists every finished, non-superseded run.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithObserver forwards runner progress of the active run to cb. Events
// from superseded runs are not forwarded.
func WithObserver(cb *runner.Callbacks) Option {
	return func(s *Session) { s.observer = cb }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Session) { s.newID = f }
}

// New creates an idle session running attempts through r against model.
func New(r *runner.Runner, model string, opts ...Option) *Session {
	s := &Session{
		runner: r,
		model:  model,
		logger: logging.Discard(),
		newID:  NewRunID,
		state:  State{Status: runner.StatusIdle},
		subs:   make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts a run and blocks until it finishes. Cancelling ctx stops the run.
// The returned State is final even when err is non-nil, unless the run was
// superseded meanwhile.
func (s *Session) Run(ctx context.Context, req Request) (State, error) {
	gen, runCtx, err := s.begin(ctx, req)
	if err != nil {
		return s.Snapshot(), err
	}
	return s.execute(runCtx, gen, req)
}

// Start begins a run in the background and returns the initial Running state.
// The run outlives ctx; it ends on completion, failure, or supersession.
func (s *Session) Start(ctx context.Context, req Request) (State, error) {
	gen, runCtx, err := s.begin(context.WithoutCancel(ctx), req)
	if err != nil {
		return s.Snapshot(), err
	}
	st := s.Snapshot()
	go func() { _, _ = s.execute(runCtx, gen, req) }()
	return st, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of state snapshots, starting with the current
// one, and a function that ends the subscription. Slow subscribers skip
// intermediate snapshots but always see the latest.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, subscriberBuffer)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Wait blocks until the current run reaches a terminal status or ctx ends.
func (s *Session) Wait(ctx context.Context) (State, error) {
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case st := <-ch:
			if st.Status.Terminal() || st.Status == runner.StatusIdle {
				return st, nil
			}
		}
	}
}

// begin validates req and replaces the current run with a new Running one.
func (s *Session) begin(parent context.Context, req Request) (uint64, context.Context, error) {
	if err := runner.Validate(req.Question, req.Attempts); err != nil {
		return 0, nil, err
	}

	runCtx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		if s.state.Status == runner.StatusRunning {
			s.logger.Info("run superseded", "run_id", s.state.RunID, "completed", len(s.state.Attempts))
		}
	}

	s.gen++
	s.cancel = cancel
	s.state = State{
		RunID:     s.newID(),
		Question:  req.Question,
		Model:     s.model,
		Status:    runner.StatusRunning,
		Total:     req.Attempts,
		Attempts:  []runner.Attempt{},
		StartedAt: time.Now(),
	}
	s.metrics.RunStarted()
	s.publishLocked()

	return s.gen, runCtx, nil
}

// execute drives the runner and folds its progress into the state of gen.
func (s *Session) execute(ctx context.Context, gen uint64, req Request) (State, error) {
	obs := s.observer
	if obs == nil {
		obs = &runner.Callbacks{}
	}

	r := s.runner.WithCallbacks(&runner.Callbacks{
		OnAttemptStart: func(index, total int) {
			if obs.OnAttemptStart != nil && s.isCurrent(gen) {
				obs.OnAttemptStart(index, total)
			}
		},
		OnAttemptComplete: func(a runner.Attempt, attempts []runner.Attempt) {
			applied := s.apply(gen, func(st *State) {
				st.Attempts = attempts
				st.Consensus = consensus.Aggregate(attempts, s.consensus)
			})
			if applied && obs.OnAttemptComplete != nil {
				obs.OnAttemptComplete(a, attempts)
			}
		},
		OnAttemptError: func(index int, err error) {
			if obs.OnAttemptError != nil && s.isCurrent(gen) {
				obs.OnAttemptError(index, err)
			}
		},
	})

	result, err := r.Run(ctx, req.Question, req.Attempts, req.Attachments...)

	final, current := s.finish(gen, result, err)
	if current && s.recorder != nil {
		if rerr := s.recorder.Record(context.WithoutCancel(ctx), final); rerr != nil {
			s.logger.Warn("failed to record run", "run_id", final.RunID, "error", rerr)
		}
	}
	return final, err
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// apply mutates the state if gen is still the active run. Stale updates are dropped.
func (s *Session) apply(gen uint64, fn func(*State)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("discarding update from superseded run", "generation", gen)
		return false
	}
	fn(&s.state)
	s.publishLocked()
	return true
}

// finish moves the run of gen to its terminal status. The second return is
// false when gen was superseded; the state is then left untouched.
func (s *Session) finish(gen uint64, result *runner.Result, err error) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.metrics.RunFinished("superseded")
		s.logger.Debug("discarding result from superseded run", "generation", gen)
		return State{Status: runner.StatusFailed}, false
	}

	st := &s.state
	if result != nil {
		st.Status = result.Status
		st.Attempts = result.Attempts
	} else {
		st.Status = runner.StatusFailed
	}
	st.Consensus = consensus.Aggregate(st.Attempts, s.consensus)
	if err != nil {
		st.Status = runner.StatusFailed
		st.Error = err.Error()
	}
	st.FinishedAt = time.Now()

	s.metrics.RunFinished(st.Status.String())
	if st.Status == runner.StatusCompleted && st.Consensus != nil {
		s.metrics.ObserveAgreement(st.Consensus.AgreementCount, st.Consensus.TotalAttempts)
	}
	s.cancel()
	s.cancel = nil

	s.publishLocked()
	return s.snapshotLocked(), true
}

func (s *Session) snapshotLocked() State {
	st := s.state
	if st.Attempts != nil {
		st.Attempts = append([]runner.Attempt(nil), st.Attempts...)
	}
	return st
}

// publishLocked fans the current state out to subscribers, replacing the
// oldest queued snapshot when a subscriber is full.
func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	st := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
