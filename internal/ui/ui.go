// Package ui renders run progress and results for an interactive terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/johnayoung/llm-verify/internal/consensus"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	colorAccent  = lipgloss.Color("#06B6D4")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorAttempt = lipgloss.Color("#7C3AED")
)

// styles binds the palette to a renderer so the color profile follows w.
type styles struct {
	accent, success, warning, failure, muted, bold lipgloss.Style
	header, attempt, consensus, noConsensus         lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	box := r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return styles{
		accent:      r.NewStyle().Foreground(colorAccent),
		success:     r.NewStyle().Foreground(colorSuccess),
		warning:     r.NewStyle().Foreground(colorWarning).Bold(true),
		failure:     r.NewStyle().Foreground(colorError),
		muted:       r.NewStyle().Foreground(colorMuted),
		bold:        r.NewStyle().Bold(true),
		header:      box.BorderForeground(colorAccent),
		attempt:     box.BorderForeground(colorAttempt),
		consensus:   box.Border(lipgloss.DoubleBorder()).BorderForeground(colorSuccess),
		noConsensus: box.Border(lipgloss.DoubleBorder()).BorderForeground(colorWarning),
	}
}

// AttemptStatus is the display state of one attempt.
type AttemptStatus int

const (
	AttemptPending AttemptStatus = iota
	AttemptRunning
	AttemptComplete
	AttemptFailed
)

type attemptState struct {
	status    AttemptStatus
	startTime time.Time
	endTime   time.Time
	answer    string
	err       error
}

// Progress displays live per-attempt progress.
type Progress struct {
	mu        sync.Mutex
	w         io.Writer
	st        styles
	attempts  []attemptState
	startTime time.Time
	ticker    *time.Ticker
	done      chan struct{}
	quiet     bool
	rendered  bool
}

// NewProgress creates a progress display for total attempts.
func NewProgress(w io.Writer, total int, quiet bool) *Progress {
	return &Progress{
		w:         w,
		st:        newStyles(w),
		attempts:  make([]attemptState, total),
		startTime: time.Now(),
		done:      make(chan struct{}),
		quiet:     quiet,
	}
}

// Start begins the refresh loop.
func (p *Progress) Start() {
	if p.quiet {
		return
	}

	p.ticker = time.NewTicker(100 * time.Millisecond)
	go func() {
		for {
			select {
			case <-p.ticker.C:
				p.render()
			case <-p.done:
				return
			}
		}
	}()

	p.render()
}

// Stop ends the display and leaves the final frame on screen.
func (p *Progress) Stop() {
	if p.quiet {
		return
	}

	close(p.done)
	if p.ticker != nil {
		p.ticker.Stop()
	}
	p.render()
}

// AttemptStarted marks attempt index (1-based) as in flight.
func (p *Progress) AttemptStarted(index int) {
	p.update(index, func(s *attemptState) {
		s.status = AttemptRunning
		s.startTime = time.Now()
	})
}

// AttemptCompleted records a finished attempt.
func (p *Progress) AttemptCompleted(a runner.Attempt) {
	p.update(a.Index, func(s *attemptState) {
		s.status = AttemptComplete
		s.endTime = time.Now()
		s.answer = a.Parsed.Answer
	})
}

// AttemptFailed records a failed attempt.
func (p *Progress) AttemptFailed(index int, err error) {
	p.update(index, func(s *attemptState) {
		s.status = AttemptFailed
		s.endTime = time.Now()
		s.err = err
	})
}

func (p *Progress) update(index int, fn func(*attemptState)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 1 || index > len(p.attempts) {
		return
	}
	fn(&p.attempts[index-1])
}

// render redraws every attempt line in place.
func (p *Progress) render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rendered {
		clearLines(p.w, len(p.attempts)+2)
	}
	p.rendered = true

	elapsed := time.Since(p.startTime)
	fmt.Fprintf(p.w, "%s %s\n",
		p.st.accent.Bold(true).Render(fmt.Sprintf("⚡ Running %d attempts", len(p.attempts))),
		p.st.muted.Render(fmt.Sprintf("(%.1fs)", elapsed.Seconds())))

	for i := range p.attempts {
		fmt.Fprintln(p.w, p.line(i+1, &p.attempts[i]))
	}
	fmt.Fprintln(p.w)
}

func (p *Progress) line(index int, s *attemptState) string {
	var icon, status string
	style := p.st.muted

	switch s.status {
	case AttemptPending:
		icon, status = "○", "pending"
	case AttemptRunning:
		icon = spinner(time.Now())
		style = p.st.warning.UnsetBold()
		status = fmt.Sprintf("thinking... %.1fs", time.Since(s.startTime).Seconds())
	case AttemptComplete:
		icon = "✓"
		style = p.st.success
		answer := truncate(s.answer, 40)
		if answer == "" {
			answer = "no final answer"
		}
		status = fmt.Sprintf("%s in %.1fs", answer, s.endTime.Sub(s.startTime).Seconds())
	case AttemptFailed:
		icon = "✗"
		style = p.st.failure
		status = fmt.Sprintf("failed: %v", s.err)
	}

	return fmt.Sprintf("  %s %-10s %s", style.Render(icon), fmt.Sprintf("attempt %d", index), style.Render(status))
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\033[A\033[K")
	}
}

func spinner(t time.Time) string {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return frames[int(t.UnixMilli()/100)%len(frames)]
}

// truncate shortens s to max runes on a single line.
func truncate(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

// PrintHeader prints the run banner.
func PrintHeader(w io.Writer, question, model string, attempts int) {
	st := newStyles(w)
	body := fmt.Sprintf("%s\nQuestion: %s\nModel: %s  Attempts: %d",
		st.accent.Bold(true).Render("LLM Verify"),
		truncate(question, 60), model, attempts)
	fmt.Fprintf(w, "\n%s\n\n", st.header.Render(body))
}

// PrintPhase prints a phase heading.
func PrintPhase(w io.Writer, phase string) {
	fmt.Fprintln(w, newStyles(w).warning.Render("▸ "+phase))
}

// PrintSuccess prints a success message.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, newStyles(w).success.Render("✓ "+msg))
}

// PrintError prints an error message verbatim.
func PrintError(w io.Writer, msg string) {
	fmt.Fprintln(w, newStyles(w).failure.Render("✗ "+msg))
}

// PrintAttempt prints one attempt's answer, confidence and analysis.
func PrintAttempt(w io.Writer, a runner.Attempt) {
	st := newStyles(w)

	answer := a.Parsed.Answer
	if answer == "" {
		answer = st.muted.Render("(no final answer)")
	}
	lines := []string{
		st.bold.Render(fmt.Sprintf("Attempt %d", a.Index)) +
			st.muted.Render(fmt.Sprintf("  %s [%.1fs]", a.Provider, a.Latency.Seconds())),
		"Answer: " + answer,
	}
	if a.Parsed.Confidence != "" {
		lines = append(lines, "Confidence: "+a.Parsed.Confidence)
	}
	if a.Parsed.Analysis != "" {
		lines = append(lines, "", st.muted.Render(a.Parsed.Analysis))
	}
	fmt.Fprintln(w, st.attempt.Render(strings.Join(lines, "\n")))
}

// PrintConsensus prints the consensus decision. A nil result prints nothing.
func PrintConsensus(w io.Writer, c *consensus.Result) {
	if c == nil {
		return
	}
	st := newStyles(w)

	box, title := st.consensus, st.success.Bold(true).Render("CONSENSUS")
	if !c.IsConsensus {
		box, title = st.noConsensus, st.warning.Render("NO CONSENSUS")
	}

	answer := "(no answer)"
	if c.Representative != nil && c.Representative.Parsed.Answer != "" {
		answer = c.Representative.Parsed.Answer
	}
	body := fmt.Sprintf("%s\n%s\n%s", title, answer,
		st.muted.Render(fmt.Sprintf("%d of %d attempts agree", c.AgreementCount, c.TotalAttempts)))
	fmt.Fprintf(w, "\n%s\n", box.Render(body))
}

// PrintSummary prints attempt counts and elapsed time.
func PrintSummary(w io.Writer, total, completed int, status runner.Status, elapsed time.Duration) {
	st := newStyles(w)
	statusStyle := st.success
	if status == runner.StatusFailed {
		statusStyle = st.failure
	}
	fmt.Fprintf(w, "\n%s\n", st.muted.Render("─── Summary ───"))
	fmt.Fprintf(w, "Attempts: %d of %d completed (%s)\n", completed, total, statusStyle.Render(status.String()))
	fmt.Fprintf(w, "Total time: %.1fs\n", elapsed.Seconds())
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
