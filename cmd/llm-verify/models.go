package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/johnayoung/llm-verify/internal/provider"
	"github.com/spf13/cobra"
)

func newModelsCmd(g *globalFlags) *cobra.Command {
	var (
		remote     bool
		baseURL    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models",
		Long: `Models lists the built-in model table. With --remote it asks the
OpenAI API (or the OpenAI-compatible server at --base-url) which models the
account can use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if !remote {
				known := provider.KnownModels()
				if jsonOutput {
					return writeJSON(out, known)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MODEL\tBACKEND")
				for _, m := range known {
					fmt.Fprintf(tw, "%s\t%s\n", m.Name, m.Backend)
				}
				return tw.Flush()
			}

			var opts []provider.OpenAIOption
			if baseURL != "" {
				opts = append(opts, provider.WithOpenAIBaseURL(baseURL))
			}
			client, err := provider.NewOpenAI(opts...)
			if err != nil {
				return err
			}
			ids, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing remote models: %w", err)
			}
			if jsonOutput {
				return writeJSON(out, ids)
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Query the provider for available models")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI-compatible endpoint for --remote")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
