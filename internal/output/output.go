// Package output renders finished runs as JSON and saves run artifacts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/johnayoung/llm-verify/internal/consensus"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/johnayoung/llm-verify/internal/session"
)

// Result is the JSON output structure for the CLI.
type Result struct {
	RunID     string            `json:"run_id"`
	Question  string            `json:"question"`
	Model     string            `json:"model"`
	Status    runner.Status     `json:"status"`
	Attempts  []runner.Attempt  `json:"attempts"`
	Consensus *consensus.Result `json:"consensus"`
	Error     string            `json:"error,omitempty"`
}

// FromState converts a session snapshot.
func FromState(st session.State) Result {
	attempts := st.Attempts
	if attempts == nil {
		attempts = []runner.Attempt{}
	}
	return Result{
		RunID:     st.RunID,
		Question:  st.Question,
		Model:     st.Model,
		Status:    st.Status,
		Attempts:  attempts,
		Consensus: st.Consensus,
		Error:     st.Error,
	}
}

// Write encodes r as indented JSON.
func Write(w io.Writer, r Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteFile writes r as JSON to path.
func WriteFile(path string, r Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := Write(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Save writes result.json, question.txt and answer.md under dataDir/<run-id>
// and returns the run directory.
func Save(dataDir string, r Result) (string, error) {
	if r.RunID == "" {
		return "", fmt.Errorf("saving run: empty run ID")
	}

	runDir := filepath.Join(dataDir, r.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	if err := WriteFile(filepath.Join(runDir, "result.json"), r); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, "question.txt"), []byte(r.Question), 0o644); err != nil {
		return "", fmt.Errorf("saving question: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "answer.md"), []byte(Markdown(r)), 0o644); err != nil {
		return "", fmt.Errorf("saving answer: %w", err)
	}
	return runDir, nil
}

// Markdown renders the consensus answer followed by every attempt.
func Markdown(r Result) string {
	var b strings.Builder

	b.WriteString("# Answer\n\n")
	c := r.Consensus
	switch {
	case c == nil || c.Representative == nil:
		b.WriteString("_No answer._\n")
	default:
		answer := c.Representative.Parsed.Answer
		if answer == "" {
			answer = "_No final answer found._"
		}
		fmt.Fprintf(&b, "%s\n\n", answer)
		verdict := "no consensus"
		if c.IsConsensus {
			verdict = "consensus"
		}
		fmt.Fprintf(&b, "Agreement: %d of %d attempts (%s)\n", c.AgreementCount, c.TotalAttempts, verdict)
	}

	if r.Error != "" {
		fmt.Fprintf(&b, "\n> Error: %s\n", r.Error)
	}

	for _, a := range r.Attempts {
		fmt.Fprintf(&b, "\n## Attempt %d\n\n", a.Index)
		fmt.Fprintf(&b, "**Answer:** %s\n", orNone(a.Parsed.Answer))
		if a.Parsed.Confidence != "" {
			fmt.Fprintf(&b, "**Confidence:** %s\n", a.Parsed.Confidence)
		}
		if a.Parsed.Analysis != "" {
			fmt.Fprintf(&b, "\n%s\n", a.Parsed.Analysis)
		}
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
