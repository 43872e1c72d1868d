// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus persists indexed trial records and their eligibility
// vectors in SQLite. The store is written by the index command and is
// read-only while a matching request runs.
package corpus

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/trialmatch/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "trials.db"
)

// Entry is one indexed eligibility vector. Entries are returned in
// insertion order.
type Entry struct {
	TrialID string
	Vector  []float32
}

// Store is the SQLite-backed trial corpus.
type Store struct {
	db  *sql.DB
	dir string
}

// NewStore opens or creates dir/index/trials.db and its schema.
func NewStore(dir string) (*Store, error) {
	dbDir := filepath.Join(dir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trials (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			title TEXT,
			status TEXT,
			phase TEXT,
			inclusion_text TEXT,
			exclusion_text TEXT,
			description_text TEXT,
			content_hash TEXT NOT NULL,
			embedder TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			vector BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trials_status ON trials(status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Put inserts or replaces rec with its eligibility vector. An update keeps
// the record's original insertion position.
func (s *Store) Put(ctx context.Context, rec types.TrialRecord, contentHash, embedder string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trials (id, title, status, phase, inclusion_text, exclusion_text,
			description_text, content_hash, embedder, dimension, vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, status=excluded.status, phase=excluded.phase,
			inclusion_text=excluded.inclusion_text, exclusion_text=excluded.exclusion_text,
			description_text=excluded.description_text, content_hash=excluded.content_hash,
			embedder=excluded.embedder, dimension=excluded.dimension, vector=excluded.vector`,
		rec.ID, rec.Title, rec.Status, rec.Phase, rec.InclusionText, rec.ExclusionText,
		rec.DescriptionText, contentHash, embedder, len(vec), encodeVector(vec),
	)
	if err != nil {
		return fmt.Errorf("upserting trial %s: %w", rec.ID, err)
	}
	return nil
}

// ContentHash returns the stored hash and embedder for id. ok is false when
// the trial is not indexed.
func (s *Store) ContentHash(ctx context.Context, id string) (hash, embedder string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT content_hash, embedder FROM trials WHERE id = ?`, id,
	).Scan(&hash, &embedder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("reading content hash: %w", err)
	}
	return hash, embedder, true, nil
}

// Get returns the record for id, or an error wrapping types.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (types.TrialRecord, error) {
	var rec types.TrialRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, phase, inclusion_text, exclusion_text, description_text
		 FROM trials WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Title, &rec.Status, &rec.Phase,
		&rec.InclusionText, &rec.ExclusionText, &rec.DescriptionText)
	if errors.Is(err, sql.ErrNoRows) {
		return types.TrialRecord{}, fmt.Errorf("trial %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.TrialRecord{}, fmt.Errorf("reading trial %s: %w", id, err)
	}
	return rec, nil
}

// Entries returns every indexed vector in insertion order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, vector FROM trials ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", id, err)
		}
		out = append(out, Entry{TrialID: id, Vector: vec})
	}
	return out, rows.Err()
}

// All returns every record in insertion order.
func (s *Store) All(ctx context.Context) ([]types.TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, phase, inclusion_text, exclusion_text, description_text
		 FROM trials ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying trials: %w", err)
	}
	defer rows.Close()

	var out []types.TrialRecord
	for rows.Next() {
		var rec types.TrialRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Status, &rec.Phase,
			&rec.InclusionText, &rec.ExclusionText, &rec.DescriptionText); err != nil {
			return nil, fmt.Errorf("scanning trial: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of indexed trials.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM trials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting trials: %w", err)
	}
	return n, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return vec, nil
}
