package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/johnayoung/llm-verify/internal/answer"
	"github.com/johnayoung/llm-verify/internal/consensus"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/johnayoung/llm-verify/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func completedRun(id string, started time.Time, answers ...string) session.State {
	attempts := make([]runner.Attempt, len(answers))
	for i, a := range answers {
		attempts[i] = runner.Attempt{
			Index:    i + 1,
			Raw:      "FINAL ANSWER: " + a,
			Parsed:   answer.Parse("FINAL ANSWER: " + a),
			Model:    "gpt-5",
			Provider: "openai",
			Latency:  time.Duration(i+1) * time.Second,
		}
	}
	return session.State{
		RunID:      id,
		Question:   "question " + id,
		Model:      "gpt-5",
		Status:     runner.StatusCompleted,
		Total:      len(answers),
		Attempts:   attempts,
		Consensus:  consensus.Aggregate(attempts, consensus.Options{}),
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	st := completedRun("run-a", started, "Paris", "paris", "London")
	require.NoError(t, s.Record(ctx, st))

	got, err := s.Get(ctx, "run-a")
	require.NoError(t, err)

	assert.Equal(t, st.RunID, got.RunID)
	assert.Equal(t, st.Question, got.Question)
	assert.Equal(t, runner.StatusCompleted, got.Status)
	assert.True(t, st.StartedAt.Equal(got.StartedAt))
	require.Len(t, got.Attempts, 3)
	assert.Equal(t, st.Attempts[2], got.Attempts[2])
	require.NotNil(t, got.Consensus)
	assert.Equal(t, 2, got.Consensus.AgreementCount)
	assert.Equal(t, "Paris", got.Consensus.Representative.Parsed.Answer)
}

func TestStore_List(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, completedRun("old", base, "1", "1")))
	require.NoError(t, s.Record(ctx, completedRun("new", base.Add(time.Hour), "2", "3")))

	failed := completedRun("mid", base.Add(30*time.Minute), "4")
	failed.Status = runner.StatusFailed
	failed.Error = "attempt 2 of 2: service unavailable"
	require.NoError(t, s.Record(ctx, failed))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, []string{"new", "mid", "old"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})

	assert.Equal(t, "2", entries[0].Answer)
	assert.Equal(t, 1, entries[0].AgreementCount)
	assert.Equal(t, 2, entries[0].TotalAttempts)
	assert.True(t, entries[0].IsConsensus)
	assert.True(t, base.Add(time.Hour).Equal(entries[0].StartedAt))

	assert.Equal(t, runner.StatusFailed, entries[1].Status)
	assert.Equal(t, "attempt 2 of 2: service unavailable", entries[1].Error)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_RecordReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	st := completedRun("same", time.Now(), "x")
	require.NoError(t, s.Record(ctx, st))

	st.Question = "edited"
	require.NoError(t, s.Record(ctx, st))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "edited", entries[0].Question)
}

func TestStore_GetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RecordRequiresID(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Record(context.Background(), session.State{}))
}
