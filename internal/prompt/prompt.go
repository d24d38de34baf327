// Package prompt renders the text sent to the model for each attempt.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// DefaultPreamble describes the assistant and the output format the answer
// parser depends on.
const DefaultPreamble = `You are a meticulous expert problem solver with deep knowledge across science, mathematics, engineering, history and everyday reasoning.

Work through the question step by step, then finish your response in exactly this format:

**FINAL ANSWER:** <your answer, as short as the question allows>
Confidence: <High, Medium or Low>`

const verificationDirective = `This is attempt {{.Attempt.Index}} of {{.Attempt.Total}}. Solve the question independently from scratch. Before giving your final answer, double-check your reasoning: re-derive each step, verify any calculation, and look for an alternative interpretation of the question you might have missed.`

const promptTemplate = `{{.Preamble}}
{{if .Attachments}}
Attached files:
{{range .Attachments}}
--- File: {{.Name}} | Type: {{.Type}} ---
{{.Summary}}
{{end}}{{end}}
Question:
{{.Question}}
{{if gt .Attempt.Index 1}}
` + verificationDirective + `
{{end}}`

var tmpl = template.Must(template.New("attempt").Parse(promptTemplate))

// AttemptConfig identifies one attempt within a run. Index is 1-based.
type AttemptConfig struct {
	Index int
	Total int
}

// Attachment is a file already reduced to text for interpolation.
type Attachment struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// Builder renders attempt prompts. The zero value is not usable; call NewBuilder.
type Builder struct {
	preamble string
}

// Option configures a Builder.
type Option func(*Builder)

// WithPreamble replaces DefaultPreamble.
func WithPreamble(p string) Option {
	return func(b *Builder) { b.preamble = p }
}

// NewBuilder creates a Builder using DefaultPreamble unless overridden.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{preamble: DefaultPreamble}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the prompt for one attempt. The verification directive is
// appended only when cfg.Index > 1.
func (b *Builder) Build(question string, cfg AttemptConfig, attachments []Attachment) (string, error) {
	data := struct {
		Preamble    string
		Question    string
		Attempt     AttemptConfig
		Attachments []Attachment
	}{
		Preamble:    b.preamble,
		Question:    question,
		Attempt:     cfg,
		Attachments: attachments,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}
