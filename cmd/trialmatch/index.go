// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trialmatch/internal/corpus"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load structured trial records into the corpus and embed them",
	Long: `Index reads pre-structured trial records (YAML or JSON, one record or a
list per file) from the trials directory, embeds each trial's eligibility
text, and stores record and vector in the SQLite corpus. Records whose
content and embedder are unchanged since the last run are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, e, err := openCorpus(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ix := &corpus.Indexer{Store: store, Embedder: e}
		summary, err := ix.IndexDir(ctx, cfg.Corpus.TrialsDir, os.Stdout)
		if err != nil {
			return err
		}
		log.WithField("total", summary.Total()).Info("Indexing complete")
		if summary.Failed > 0 {
			return fmt.Errorf("%d trial(s) failed indexing", summary.Failed)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().String("trials-dir", "trials", "directory of trial record files (YAML/JSON)")
	bindFlag("corpus.trials_dir", indexCmd.Flags().Lookup("trials-dir"))

	rootCmd.AddCommand(indexCmd)
}
