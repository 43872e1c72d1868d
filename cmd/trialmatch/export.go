// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trialmatch/internal/corpus"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the trial corpus to YAML or JSON",
	Long: `Export writes every indexed trial record to corpus/index/export.yaml or
export.json, or to stdout with --stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		toStdout, _ := cmd.Flags().GetBool("stdout")

		store, err := corpus.NewStore(cfg.Corpus.Dir)
		if err != nil {
			return err
		}
		defer store.Close()

		if toStdout {
			return store.Export(cmd.Context(), os.Stdout, format)
		}
		path, err := store.ExportFile(cmd.Context(), format)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported corpus to %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	exportCmd.Flags().Bool("stdout", false, "write to stdout instead of the index directory")

	rootCmd.AddCommand(exportCmd)
}
