// Package answer extracts a structured answer from free-form model output.
//
// Models are asked to end their reasoning with a bolded "FINAL ANSWER:" marker
// and a "Confidence:" line. Compliance is not guaranteed, so Parse never fails:
// a missing marker simply leaves the corresponding field empty.
package answer

import (
	"regexp"
	"strings"
)

var (
	// finalAnswerRe matches the first FINAL ANSWER marker, tolerating bold
	// markup around it, and captures up to a blank line, a Confidence label,
	// or the end of the text.
	finalAnswerRe = regexp.MustCompile(`(?is)\**\s*FINAL ANSWER:\s*\**\s*(.*?)(?:\n\s*\n|confidence:|$)`)

	// confidenceRe captures the remainder of the first line carrying a Confidence label.
	confidenceRe = regexp.MustCompile(`(?i)confidence:[ \t*]*([^\n]*)`)
)

// Parsed is the structured view of one model response.
type Parsed struct {
	Analysis   string `json:"analysis"`
	Answer     string `json:"answer"`
	Confidence string `json:"confidence"`
	FullText   string `json:"full_text"`
}

// Parse splits raw model output into analysis, answer and confidence.
func Parse(raw string) Parsed {
	if raw == "" {
		return Parsed{}
	}

	p := Parsed{FullText: raw}

	if loc := finalAnswerRe.FindStringSubmatchIndex(raw); loc != nil {
		p.Answer = stripMarkup(raw[loc[2]:loc[3]])
		p.Analysis = strings.TrimSpace(raw[:loc[0]])
	} else {
		p.Analysis = strings.TrimSpace(raw)
	}

	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		p.Confidence = stripMarkup(m[1])
	}

	return p
}

// stripMarkup trims whitespace and any bold asterisks left around a value.
func stripMarkup(s string) string {
	return strings.Trim(s, " \t\r\n*")
}
