package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/johnayoung/llm-verify/internal/output"
	"github.com/johnayoung/llm-verify/internal/ui"
	"github.com/spf13/cobra"
)

func newHistoryCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect previous runs",
	}
	cmd.AddCommand(newHistoryListCmd(g), newHistoryShowCmd(g))
	return cmd
}

func newHistoryListCmd(g *globalFlags) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, false, nil)
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tAGREEMENT\tANSWER\tQUESTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					e.ID,
					e.StartedAt.Local().Format(time.DateTime),
					e.Status,
					e.AgreementCount, e.TotalAttempts,
					clip(e.Answer, 30),
					clip(e.Question, 50),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newHistoryShowCmd(g *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, false, nil)
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return output.Write(out, output.FromState(st))
			}

			ui.PrintHeader(out, st.Question, st.Model, st.Total)
			for _, att := range st.Attempts {
				ui.PrintAttempt(out, att)
			}
			ui.PrintConsensus(out, st.Consensus)
			ui.PrintSummary(out, st.Total, len(st.Attempts), st.Status, st.FinishedAt.Sub(st.StartedAt))
			if st.Error != "" {
				fmt.Fprintln(out)
				ui.PrintError(out, st.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

// clip shortens s to max runes on one line.
func clip(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
