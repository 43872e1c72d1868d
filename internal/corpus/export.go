// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Export writes every record to w as "yaml" or "json".
func (s *Store) Export(ctx context.Context, w io.Writer, format string) error {
	records, err := s.All(ctx)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}

	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported export format %q: use yaml or json", format)
	}
}

// ExportFile writes dir/index/export.<format> and returns its path.
func (s *Store) ExportFile(ctx context.Context, format string) (string, error) {
	if format == "" {
		format = "yaml"
	}
	path := filepath.Join(s.dir, indexDir, "export."+format)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	if err := s.Export(ctx, f, format); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	return path, f.Close()
}
