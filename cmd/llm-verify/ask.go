package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/johnayoung/llm-verify/internal/config"
	"github.com/johnayoung/llm-verify/internal/ingest"
	"github.com/johnayoung/llm-verify/internal/output"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/johnayoung/llm-verify/internal/session"
	"github.com/johnayoung/llm-verify/internal/ui"
	"github.com/spf13/cobra"
)

type askFlags struct {
	attempts  int
	model     string
	baseURL   string
	file      string
	attach    []string
	output    string
	dataDir   string
	timeout   time.Duration
	quiet     bool
	json      bool
	noSave    bool
	noHistory bool
	trace     bool
}

func newAskCmd(g *globalFlags) *cobra.Command {
	f := &askFlags{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run a multi-attempt verification for one question",
		Long: `Ask sends the question to the model once per attempt and reports the
majority answer. The question comes from the arguments, --file, or stdin.`,
		Example: `  llm-verify ask "What is the boiling point of water at 2000 m?"
  llm-verify ask --attempts 5 --model claude-sonnet-4-5 --attach notes.txt "Summarize the notes"
  echo "Is 1009 prime?" | llm-verify ask --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, g, f, args)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.attempts, "attempts", "n", 0, "Number of attempts, 1-20 (default from config)")
	fl.StringVarP(&f.model, "model", "m", "", "Model to query (default from config)")
	fl.StringVar(&f.baseURL, "base-url", "", "OpenAI-compatible endpoint; any model name is accepted")
	fl.StringVarP(&f.file, "file", "f", "", "Read the question from a file")
	fl.StringArrayVarP(&f.attach, "attach", "a", nil, "Attach a file to the prompt (repeatable)")
	fl.StringVarP(&f.output, "output", "o", "", "Write JSON output to a specific file (overrides auto-save)")
	fl.StringVar(&f.dataDir, "data-dir", "", "Directory for auto-saved runs (default from config)")
	fl.DurationVar(&f.timeout, "timeout", 0, "Per-attempt timeout (default from config)")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress progress output")
	fl.BoolVar(&f.json, "json", false, "Output JSON to stdout (no interactive display, no auto-save)")
	fl.BoolVar(&f.noSave, "no-save", false, "Don't auto-save results to the data directory")
	fl.BoolVar(&f.noHistory, "no-history", false, "Don't record the run in the history database")
	fl.BoolVar(&f.trace, "trace", false, "Export trace spans to stderr")

	return cmd
}

func (f *askFlags) apply(cmd *cobra.Command) func(*config.Config) {
	changed := cmd.Flags().Changed
	return func(c *config.Config) {
		if changed("attempts") {
			c.Attempts = f.attempts
		}
		if changed("model") {
			c.Model = f.model
		}
		if changed("base-url") {
			c.BaseURL = f.baseURL
		}
		if changed("data-dir") {
			c.DataDir = f.dataDir
		}
		if changed("timeout") {
			c.Timeout = f.timeout
		}
		if f.trace {
			c.Telemetry.Exporter = "stdout"
		}
	}
}

func runAsk(cmd *cobra.Command, g *globalFlags, f *askFlags, args []string) error {
	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	question, err := readQuestion(cmd.InOrStdin(), args, f.file)
	if err != nil {
		return err
	}

	// Show UI only on an interactive terminal. Progress goes to stderr, JSON to stdout or file.
	errFile, isFile := stderr.(*os.File)
	showUI := isFile && ui.IsTerminal(errFile) && !f.quiet && !f.json

	a, err := newApp(cmd, g, showUI, f.apply(cmd))
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	attachments, err := ingest.Load(ctx, ingest.FromPaths(f.attach))
	if err != nil {
		return fmt.Errorf("loading attachments: %w", err)
	}

	r, err := a.newRunner(nil)
	if err != nil {
		return err
	}

	progress := ui.NewProgress(stderr, cfg.Attempts, !showUI)
	opts := []session.Option{
		session.WithConsensus(cfg.Consensus),
		session.WithLogger(a.logger),
		session.WithObserver(&runner.Callbacks{
			OnAttemptStart:    func(index, total int) { progress.AttemptStarted(index) },
			OnAttemptComplete: func(att runner.Attempt, _ []runner.Attempt) { progress.AttemptCompleted(att) },
			OnAttemptError:    func(index int, err error) { progress.AttemptFailed(index, err) },
		}),
	}
	if !f.noHistory {
		store, err := a.openHistory()
		if err != nil {
			a.logger.Warn("history disabled", "error", err)
		} else {
			defer store.Close()
			opts = append(opts, session.WithRecorder(store))
		}
	}
	sess := session.New(r, cfg.Model, opts...)

	if showUI {
		ui.PrintHeader(stderr, question, cfg.Model, cfg.Attempts)
	}
	startTime := time.Now()

	progress.Start()
	st, runErr := sess.Run(ctx, session.Request{
		Question:    question,
		Attempts:    cfg.Attempts,
		Attachments: attachments,
	})
	progress.Stop()

	var verr *runner.ValidationError
	if errors.As(runErr, &verr) {
		return runErr
	}

	result := output.FromState(st)

	var savedTo string
	switch {
	case f.output != "":
		if err := output.WriteFile(f.output, result); err != nil {
			return err
		}
		savedTo = f.output
	case !f.json && !f.noSave:
		runDir, err := output.Save(cfg.DataDir, result)
		if err != nil {
			// Non-fatal, just warn
			a.logger.Warn("failed to save run", "error", err)
		} else {
			savedTo = runDir
		}
	}

	switch {
	case f.json || (!showUI && f.output == ""):
		if err := output.Write(stdout, result); err != nil {
			return err
		}
	case showUI:
		fmt.Fprintln(stderr)
		for _, att := range st.Attempts {
			ui.PrintAttempt(stderr, att)
		}
		ui.PrintConsensus(stderr, st.Consensus)
		ui.PrintSummary(stderr, cfg.Attempts, len(st.Attempts), st.Status, time.Since(startTime))
		if savedTo != "" {
			fmt.Fprintln(stderr)
			ui.PrintSuccess(stderr, fmt.Sprintf("Run saved to %s", savedTo))
		}
		if runErr != nil {
			fmt.Fprintln(stderr)
			ui.PrintError(stderr, st.Error)
			return reportedError{runErr}
		}
	}

	return runErr
}

// readQuestion takes the question from args, then file, then piped stdin.
func readQuestion(stdin io.Reader, args []string, file string) (string, error) {
	// Priority 1: Positional argument
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	// Priority 2: File flag
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading question file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	// Priority 3: Stdin (if not a terminal)
	if in, ok := stdin.(*os.File); ok && ui.IsTerminal(in) {
		return "", errors.New("no question provided: use a positional argument, --file, or pipe to stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	question := strings.TrimSpace(string(data))
	if question == "" {
		return "", errors.New("no question provided: use a positional argument, --file, or pipe to stdin")
	}
	return question, nil
}
