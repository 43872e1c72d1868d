// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the trialmatch CLI: index a trial
// corpus, search it, and run eligibility deep dives for a patient.
package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/internal/secrets"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the resolved configuration, populated before every command.
	cfg types.Config

	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trialmatch",
	Short: "Clinical trial eligibility matching and deep-dive resolution",
	Long: `trialmatch retrieves candidate clinical trials for a patient, asks an LLM to
classify every eligibility criterion as MET, NOT_MET, or UNCLEAR, and then
works the UNCLEAR items down: internal search of the patient record,
genomic variant interpretation, and drafted follow-up actions for the rest.

Subcommands: index, search, match, export, version.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		l, err := logging.New(c.Log)
		if err != nil {
			return err
		}

		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir, l)
		if err != nil {
			return err
		}
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			l.WithField("keys", keys).Debug("Loaded secrets")
		}
		secrets.Apply(&c, s)

		cfg, log = c, l
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./trialmatch.yaml or ~/.config/trialmatch/config.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of API key files")
	pf.String("corpus-dir", "corpus", "base directory for the trial corpus (contains index/)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")

	bindFlag("corpus.dir", pf.Lookup("corpus-dir"))
	bindFlag("log.level", pf.Lookup("log-level"))
	bindFlag("log.format", pf.Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("trialmatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "trialmatch"))
		}
	}

	viper.SetEnvPrefix("TRIALMATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
