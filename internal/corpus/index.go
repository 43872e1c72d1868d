// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trialmatch/internal/embed"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// IndexSummary holds counts from an indexing run.
type IndexSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of records processed.
func (s IndexSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Indexer loads pre-structured trial records and stores them with their
// eligibility vectors.
type Indexer struct {
	Store    *Store
	Embedder embed.Embedder
}

// IndexDir reads every .yaml, .yml, and .json file in dir. A file holds
// one record or a list of records. Records whose content and embedder are
// unchanged since the last run are skipped. Per-record failures are
// reported to w and counted; they do not stop the run.
func (ix *Indexer) IndexDir(ctx context.Context, dir string, w io.Writer) (IndexSummary, error) {
	records, err := LoadDir(dir)
	if err != nil {
		return IndexSummary{}, err
	}

	embedderID := embed.ID(ix.Embedder)
	var summary IndexSummary

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if strings.TrimSpace(rec.ID) == "" {
			fmt.Fprintf(w, "failed  (record without id): %q\n", rec.Title)
			summary.Failed++
			continue
		}
		text := rec.EligibilityText()
		if text == "" {
			fmt.Fprintf(w, "failed  %s: no eligibility text\n", rec.ID)
			summary.Failed++
			continue
		}

		hash := ContentHash(rec)
		storedHash, storedEmbedder, exists, err := ix.Store.ContentHash(ctx, rec.ID)
		if err != nil {
			return summary, err
		}
		if exists && storedHash == hash && storedEmbedder == embedderID {
			fmt.Fprintf(w, "skipped %s\n", rec.ID)
			summary.Skipped++
			continue
		}

		vec, err := ix.Embedder.Embed(ctx, text)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rec.ID, err)
			summary.Failed++
			continue
		}
		if err := ix.Store.Put(ctx, rec, hash, embedderID, vec); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rec.ID, err)
			summary.Failed++
			continue
		}

		if exists {
			fmt.Fprintf(w, "updated %s\n", rec.ID)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexed %s\n", rec.ID)
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)
	return summary, nil
}

// ContentHash fingerprints every field of rec.
func ContentHash(rec types.TrialRecord) string {
	data, _ := json.Marshal(rec)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LoadDir reads trial records from the files in dir, sorted by file name.
// Records keep their order within a file.
func LoadDir(dir string) ([]types.TrialRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading trials directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []types.TrialRecord
	for _, name := range names {
		recs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// LoadFile decodes one file holding a record or a list of records. JSON is
// parsed by the YAML decoder.
func LoadFile(path string) ([]types.TrialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var recs []types.TrialRecord
		if err := root.Decode(&recs); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return recs, nil
	case yaml.MappingNode:
		var rec types.TrialRecord
		if err := root.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return []types.TrialRecord{rec}, nil
	default:
		return nil, fmt.Errorf("decoding %s: expected a record or a list of records", path)
	}
}
