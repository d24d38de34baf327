package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder()

	first, err := b.Build("What is the capital of France?", AttemptConfig{Index: 1, Total: 3}, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, DefaultPreamble))
	assert.Contains(t, first, "What is the capital of France?")
	assert.Contains(t, first, "**FINAL ANSWER:**")
	assert.Contains(t, first, "Confidence:")
	assert.NotContains(t, first, "double-check")
	assert.NotContains(t, first, "Attached files")

	second, err := b.Build("What is the capital of France?", AttemptConfig{Index: 2, Total: 3}, nil)
	require.NoError(t, err)

	assert.Contains(t, second, "This is attempt 2 of 3")
	assert.Contains(t, second, "double-check your reasoning")
	assert.True(t, strings.HasPrefix(second, strings.TrimSuffix(first, "\n")))
}

func TestBuilder_Deterministic(t *testing.T) {
	b := NewBuilder()
	cfg := AttemptConfig{Index: 3, Total: 5}

	a, err := b.Build("q", cfg, nil)
	require.NoError(t, err)
	c, err := b.Build("q", cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestBuilder_Attachments(t *testing.T) {
	b := NewBuilder(WithPreamble("PREAMBLE"))

	got, err := b.Build("Summarize the data", AttemptConfig{Index: 1, Total: 1}, []Attachment{
		{Name: "sales.csv", Type: "text/csv", Summary: "region,total\nnorth,10"},
		{Name: "scan.pdf", Type: "application/pdf", Summary: "[PDF file: scan.pdf, 2048 bytes]"},
	})
	require.NoError(t, err)

	checks := []string{
		"PREAMBLE",
		"Attached files:",
		"--- File: sales.csv | Type: text/csv ---",
		"region,total\nnorth,10",
		"--- File: scan.pdf | Type: application/pdf ---",
		"[PDF file: scan.pdf, 2048 bytes]",
		"Question:\nSummarize the data",
	}
	for _, check := range checks {
		assert.Contains(t, got, check)
	}
	assert.Less(t, strings.Index(got, "sales.csv"), strings.Index(got, "Question:"))
}
