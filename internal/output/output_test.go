package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/johnayoung/llm-verify/internal/answer"
	"github.com/johnayoung/llm-verify/internal/consensus"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/johnayoung/llm-verify/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() Result {
	raw := []string{
		"Checked twice.\nFINAL ANSWER: 42\nConfidence: High",
		"Same.\nFINAL ANSWER: 42",
		"Hmm.\nFINAL ANSWER: 41",
	}
	attempts := make([]runner.Attempt, len(raw))
	for i, r := range raw {
		attempts[i] = runner.Attempt{Index: i + 1, Raw: r, Parsed: answer.Parse(r), Model: "m"}
	}
	return FromState(session.State{
		RunID:     "20250101-000000-abcd1234",
		Question:  "What is six times seven?",
		Model:     "m",
		Status:    runner.StatusCompleted,
		Attempts:  attempts,
		Consensus: consensus.Aggregate(attempts, consensus.Options{}),
	})
}

func TestFromState_EmptyAttempts(t *testing.T) {
	r := FromState(session.State{RunID: "x", Status: runner.StatusFailed, Error: "attempt 1 of 3: boom"})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []any{}, decoded["attempts"])
	assert.Nil(t, decoded["consensus"])
	assert.Equal(t, "failed", decoded["status"])
	assert.Equal(t, "attempt 1 of 3: boom", decoded["error"])
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult()))

	var decoded Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, runner.StatusCompleted, decoded.Status)
	require.Len(t, decoded.Attempts, 3)
	assert.Equal(t, "High", decoded.Attempts[0].Parsed.Confidence)
	assert.Equal(t, 2, decoded.Consensus.AgreementCount)
	assert.NotContains(t, buf.String(), `"error"`)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	r := sampleResult()

	runDir, err := Save(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, r.RunID), runDir)

	question, err := os.ReadFile(filepath.Join(runDir, "question.txt"))
	require.NoError(t, err)
	assert.Equal(t, r.Question, string(question))

	data, err := os.ReadFile(filepath.Join(runDir, "result.json"))
	require.NoError(t, err)
	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)

	md, err := os.ReadFile(filepath.Join(runDir, "answer.md"))
	require.NoError(t, err)
	assert.Equal(t, Markdown(r), string(md))
}

func TestSave_RequiresRunID(t *testing.T) {
	_, err := Save(t.TempDir(), Result{})
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleResult())

	assert.Contains(t, md, "# Answer\n\n42\n")
	assert.Contains(t, md, "Agreement: 2 of 3 attempts (consensus)")
	assert.Contains(t, md, "## Attempt 3\n\n**Answer:** 41\n")
	assert.Contains(t, md, "**Confidence:** High")
	assert.Contains(t, md, "Checked twice.")
}

func TestMarkdown_NoAttempts(t *testing.T) {
	md := Markdown(Result{Error: "attempt 1 of 1: unauthorized"})

	assert.Contains(t, md, "_No answer._")
	assert.Contains(t, md, "> Error: attempt 1 of 1: unauthorized")
}
