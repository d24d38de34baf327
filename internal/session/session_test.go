package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johnayoung/llm-verify/internal/metrics"
	"github.com/johnayoung/llm-verify/internal/provider"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu     sync.Mutex
	states []State
}

func (m *memRecorder) Record(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, st)
	return nil
}

func (m *memRecorder) recorded() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.states...)
}

func sequentialIDs() func() string {
	var n int32
	return func() string { return fmt.Sprintf("run-%d", atomic.AddInt32(&n, 1)) }
}

func scripted(answers ...string) provider.ProviderFunc {
	var calls int32
	return func(ctx context.Context, req provider.Request) (provider.Response, error) {
		i := int(atomic.AddInt32(&calls, 1)) - 1
		return provider.Response{Content: "Thinking.\nFINAL ANSWER: " + answers[i%len(answers)]}, nil
	}
}

func newSession(p provider.Provider, opts ...Option) *Session {
	r := runner.New(p, "test-model", runner.WithPacing(0))
	opts = append([]Option{WithIDGenerator(sequentialIDs())}, opts...)
	return New(r, "test-model", opts...)
}

func TestSession_InitialState(t *testing.T) {
	s := newSession(scripted("x"))

	st := s.Snapshot()
	assert.Equal(t, runner.StatusIdle, st.Status)
	assert.Empty(t, st.Attempts)
	assert.Nil(t, st.Consensus)
	assert.Empty(t, st.Error)
}

func TestSession_Run(t *testing.T) {
	rec := &memRecorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newSession(scripted("Paris", "paris ", "London", "Paris"), WithRecorder(rec), WithMetrics(m))

	st, err := s.Run(context.Background(), Request{Question: "Capital of France?", Attempts: 4})
	require.NoError(t, err)

	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, runner.StatusCompleted, st.Status)
	assert.Equal(t, "test-model", st.Model)
	assert.Equal(t, 4, st.Total)
	require.Len(t, st.Attempts, 4)
	require.NotNil(t, st.Consensus)
	assert.Equal(t, 3, st.Consensus.AgreementCount)
	assert.Equal(t, 4, st.Consensus.TotalAttempts)
	assert.True(t, st.Consensus.IsConsensus)
	assert.Equal(t, "Paris", st.Consensus.Representative.Parsed.Answer)
	assert.False(t, st.FinishedAt.IsZero())

	assert.Equal(t, st, s.Snapshot())

	records := rec.recorded()
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].RunID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
}

func TestSession_RunFailure(t *testing.T) {
	var calls int32
	p := provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		if atomic.AddInt32(&calls, 1) == 3 {
			return provider.Response{}, &provider.ServiceError{Provider: "test", StatusCode: 500, Body: "boom"}
		}
		return provider.Response{Content: "FINAL ANSWER: 7"}, nil
	})
	rec := &memRecorder{}
	s := newSession(p, WithRecorder(rec))

	st, err := s.Run(context.Background(), Request{Question: "q", Attempts: 5})
	require.Error(t, err)

	var svc *provider.ServiceError
	assert.True(t, errors.As(err, &svc))
	assert.Equal(t, runner.StatusFailed, st.Status)
	assert.Len(t, st.Attempts, 2)
	assert.Contains(t, st.Error, "attempt 3 of 5")
	assert.Contains(t, st.Error, "boom")
	require.NotNil(t, st.Consensus)
	assert.Equal(t, 2, st.Consensus.AgreementCount)

	assert.Len(t, rec.recorded(), 1)
}

func TestSession_ValidationLeavesStateAlone(t *testing.T) {
	s := newSession(scripted("x"))
	_, err := s.Run(context.Background(), Request{Question: "first", Attempts: 1})
	require.NoError(t, err)

	tests := []Request{
		{Question: "", Attempts: 3},
		{Question: "   ", Attempts: 3},
		{Question: "q", Attempts: 0},
	}
	for _, req := range tests {
		_, err := s.Start(context.Background(), req)
		var verr *runner.ValidationError
		require.ErrorAs(t, err, &verr)

		st := s.Snapshot()
		assert.Equal(t, "run-1", st.RunID)
		assert.Equal(t, runner.StatusCompleted, st.Status)
	}
}

func TestSession_StartAndWait(t *testing.T) {
	s := newSession(scripted("42"))

	st, err := s.Start(context.Background(), Request{Question: "q", Attempts: 3})
	require.NoError(t, err)
	assert.Equal(t, runner.StatusRunning, st.Status)
	assert.Empty(t, st.Attempts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, final.Status)
	assert.Len(t, final.Attempts, 3)
	assert.Equal(t, 3, final.Consensus.AgreementCount)
}

func TestSession_StartOutlivesRequestContext(t *testing.T) {
	s := newSession(scripted("42"))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Start(ctx, Request{Question: "q", Attempts: 2})
	require.NoError(t, err)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	final, err := s.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, final.Status)
}

func TestSession_Supersede(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	p := provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		if strings.Contains(req.Prompt, "old question") {
			entered <- struct{}{}
			<-release
			// A late reply that ignores cancellation.
			return provider.Response{Content: "FINAL ANSWER: stale"}, nil
		}
		return provider.Response{Content: "FINAL ANSWER: fresh"}, nil
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rec := &memRecorder{}
	s := newSession(p, WithMetrics(m), WithRecorder(rec))

	_, err := s.Start(context.Background(), Request{Question: "old question", Attempts: 3})
	require.NoError(t, err)
	<-entered

	st, err := s.Start(context.Background(), Request{Question: "new question", Attempts: 2})
	require.NoError(t, err)
	assert.Equal(t, "run-2", st.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := s.Wait(ctx)
	require.NoError(t, err)

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RunsTotal.WithLabelValues("superseded")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	final = s.Snapshot()
	assert.Equal(t, "run-2", final.RunID)
	assert.Equal(t, "new question", final.Question)
	assert.Equal(t, runner.StatusCompleted, final.Status)
	require.Len(t, final.Attempts, 2)
	for _, a := range final.Attempts {
		assert.Equal(t, "fresh", a.Parsed.Answer)
	}
	assert.Equal(t, "fresh", final.Consensus.Representative.Parsed.Answer)

	records := rec.recorded()
	require.Len(t, records, 1)
	assert.Equal(t, "run-2", records[0].RunID)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
}

func TestSession_Subscribe(t *testing.T) {
	s := newSession(scripted("a", "b", "a"))

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	initial := <-ch
	assert.Equal(t, runner.StatusIdle, initial.Status)

	_, err := s.Run(context.Background(), Request{Question: "q", Attempts: 3})
	require.NoError(t, err)

	var seen []State
	timeout := time.After(5 * time.Second)
	for {
		select {
		case st := <-ch:
			seen = append(seen, st)
		case <-timeout:
			t.Fatal("timed out waiting for terminal state")
		}
		if seen[len(seen)-1].Status.Terminal() {
			break
		}
	}

	assert.Equal(t, runner.StatusRunning, seen[0].Status)
	assert.Empty(t, seen[0].Attempts)

	prev := 0
	for _, st := range seen {
		assert.GreaterOrEqual(t, len(st.Attempts), prev)
		prev = len(st.Attempts)
	}

	last := seen[len(seen)-1]
	assert.Equal(t, runner.StatusCompleted, last.Status)
	assert.Equal(t, 2, last.Consensus.AgreementCount)
	assert.Equal(t, "a", last.Consensus.Representative.Parsed.Answer)
}

func TestSession_UnsubscribeClosesChannel(t *testing.T) {
	s := newSession(scripted("x"))
	ch, unsubscribe := s.Subscribe()
	<-ch

	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	_, err := s.Run(context.Background(), Request{Question: "q", Attempts: 1})
	require.NoError(t, err)
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Regexp(t, `^\d{8}-\d{6}-[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestSession_Observer(t *testing.T) {
	var (
		mu      sync.Mutex
		started []int
		done    []int
		failed  []int
	)
	obs := &runner.Callbacks{
		OnAttemptStart: func(index, total int) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, index)
		},
		OnAttemptComplete: func(a runner.Attempt, _ []runner.Attempt) {
			mu.Lock()
			defer mu.Unlock()
			done = append(done, a.Index)
		},
		OnAttemptError: func(index int, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, index)
		},
	}

	var calls int32
	p := provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		if atomic.AddInt32(&calls, 1) == 3 {
			return provider.Response{}, &provider.TransportError{Provider: "test", Err: errors.New("reset")}
		}
		return provider.Response{Content: "FINAL ANSWER: ok"}, nil
	})
	s := newSession(p, WithObserver(obs))

	_, err := s.Run(context.Background(), Request{Question: "q", Attempts: 4})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, started)
	assert.Equal(t, []int{1, 2}, done)
	assert.Equal(t, []int{3}, failed)
}
