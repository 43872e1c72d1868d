// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/trialmatch/internal/retrieve"
	"github.com/pdiddy/trialmatch/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Rank indexed trials against a free-text query",
	Long: `Search embeds the query and ranks the corpus by cosine similarity against
each trial's eligibility vector. No LLM call is made.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, e, err := openCorpus(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		r := &retrieve.Retriever{Index: store, Embedder: e, Logger: log}
		candidates, err := r.RetrieveText(ctx, strings.Join(args, " "), viper.GetInt("match.top_n"))
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		return formatCandidates(os.Stdout, candidates, jsonOutput)
	},
}

func formatCandidates(w io.Writer, candidates []types.Candidate, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	}

	fmt.Fprintf(w, "%-4s  %-6s  %-14s  %-10s  %s\n", "Rank", "Score", "Trial", "Phase", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, c := range candidates {
		title := c.Record.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(w, "%-4d  %-6.3f  %-14s  %-10s  %s\n", c.Rank, c.Score, c.Record.ID, c.Record.Phase, title)
	}
	fmt.Fprintf(w, "\n%d candidates\n", len(candidates))
	return nil
}

func init() {
	searchCmd.Flags().Int("top-n", 5, "number of candidates to return")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	bindFlag("match.top_n", searchCmd.Flags().Lookup("top-n"))

	rootCmd.AddCommand(searchCmd)
}
