// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package patient loads patient profiles from YAML or JSON files.
package patient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trialmatch/pkg/types"
)

var profileExts = []string{".yaml", ".yml", ".json"}

// Provider returns the profile for a patient ID.
type Provider interface {
	Profile(ctx context.Context, patientID string) (types.PatientProfile, error)
}

// DirProvider serves profiles from a directory. A profile is found by file
// name (<id>.yaml, <id>.yml, <id>.json) or, failing that, by the
// patient_id field of any profile file in the directory.
type DirProvider struct {
	Dir string
}

// Profile implements Provider. Unknown IDs wrap types.ErrNotFound.
func (d DirProvider) Profile(ctx context.Context, patientID string) (types.PatientProfile, error) {
	id := strings.TrimSpace(patientID)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return types.PatientProfile{}, fmt.Errorf("invalid patient id %q: %w", patientID, types.ErrNotFound)
	}

	for _, ext := range profileExts {
		p, err := LoadFile(filepath.Join(d.Dir, id+ext))
		if err == nil {
			if p.PatientID == "" {
				p.PatientID = id
			}
			return p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return types.PatientProfile{}, err
		}
	}

	files, err := profileFiles(d.Dir)
	if err != nil {
		return types.PatientProfile{}, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return types.PatientProfile{}, err
		}
		p, err := LoadFile(f)
		if err != nil {
			continue
		}
		if p.PatientID == id {
			return p, nil
		}
	}
	return types.PatientProfile{}, fmt.Errorf("patient %s: %w", id, types.ErrNotFound)
}

func profileFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading profiles directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range profileExts {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile reads one profile. JSON files parse as YAML.
func LoadFile(path string) (types.PatientProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PatientProfile{}, fmt.Errorf("reading profile: %w", err)
	}
	var p types.PatientProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return types.PatientProfile{}, fmt.Errorf("parsing profile %s: %w", filepath.Base(path), err)
	}
	return p, nil
}
