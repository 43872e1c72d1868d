// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trialmatch/internal/deepdive"
	"github.com/pdiddy/trialmatch/internal/observability/metrics"
	"github.com/pdiddy/trialmatch/internal/patient"
	"github.com/pdiddy/trialmatch/pkg/types"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run an eligibility deep dive for one patient",
	Long: `Match retrieves the top-N candidate trials for the query, analyzes every
candidate against the patient profile in parallel, resolves UNCLEAR
criteria from the patient record and genomic data, and writes the batch
report with drafted next steps.

The patient is read from --patient-file, or looked up by --patient in the
profiles directory. The query defaults to the patient's primary diagnosis.`,
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	patientID, _ := cmd.Flags().GetString("patient")
	patientFile, _ := cmd.Flags().GetString("patient-file")
	query, _ := cmd.Flags().GetString("query")
	topN, _ := cmd.Flags().GetInt("top-n")
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("out")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if !cmd.Flags().Changed("top-n") {
		topN = cfg.Match.TopN
	}
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q: use json or yaml", format)
	}

	profile, err := loadProfile(ctx, patientID, patientFile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		query = strings.TrimSpace(profile.Diagnosis.Primary + " " + profile.Diagnosis.Stage)
	}
	if query == "" {
		return errors.New("--query is required when the profile has no primary diagnosis")
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPipelineMetrics(reg)
	if metricsAddr != "" {
		stop := serveMetrics(metricsAddr, reg)
		defer stop()
	}

	store, e, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	o, err := newOrchestrator(ctx, cfg, store, e, m)
	if err != nil {
		return err
	}
	batch, err := o.Run(ctx, deepdive.Request{Query: query, TopN: topN, Profile: profile})
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeReport(w, batch, format); err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "Wrote report for %d trial(s) to %s\n", len(batch.Trials), outPath)
	}
	if n := batch.Failed(); n > 0 {
		log.WithField("failed", n).Warn("Some trials could not be analyzed; see failure_reason in the report")
	}
	return nil
}

func loadProfile(ctx context.Context, id, file string) (types.PatientProfile, error) {
	switch {
	case file != "":
		return patient.LoadFile(file)
	case id != "":
		return patient.DirProvider{Dir: cfg.Match.ProfilesDir}.Profile(ctx, id)
	}
	return types.PatientProfile{}, errors.New("one of --patient or --patient-file is required")
}

func writeReport(w io.Writer, batch types.BatchReport, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(batch); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(batch)
}

// serveMetrics exposes reg on addr/metrics for the duration of the run.
func serveMetrics(addr string, reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("addr", addr).Warn("Metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("Serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func init() {
	matchCmd.Flags().String("patient", "", "patient ID to look up in the profiles directory")
	matchCmd.Flags().String("patient-file", "", "patient profile file (YAML or JSON)")
	matchCmd.Flags().String("profiles-dir", "patients", "directory of patient profiles")
	matchCmd.Flags().String("query", "", "free-text retrieval query (default: primary diagnosis)")
	matchCmd.Flags().Int("top-n", 5, "number of candidate trials to analyze")
	matchCmd.Flags().String("format", "json", "report format: json or yaml")
	matchCmd.Flags().String("out", "", "write the report to this file instead of stdout")
	matchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	bindFlag("match.profiles_dir", matchCmd.Flags().Lookup("profiles-dir"))

	rootCmd.AddCommand(matchCmd)
}
