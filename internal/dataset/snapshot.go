// Package dataset owns the canonical, read-only view of the financial sheet.
//
// A Snapshot is built once from a full fetch and never changes afterwards.
// The Store publishes the current Snapshot through an atomic pointer so that
// queries always see one complete build, and serializes rebuilds.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"insight/internal/core"
	"insight/internal/sheets"
)

// ErrNoSnapshot is returned when the dataset is queried before the first
// successful build.
var ErrNoSnapshot = errors.New("dataset not loaded")

// Snapshot is one immutable build of the dataset.
type Snapshot struct {
	id          string
	source      sheets.SourceRef
	hash        string
	fetchedAt   time.Time
	rows        []core.RawRow
	records     []core.Record
	departments []string
	products    []string
}

// Meta describes a snapshot without its contents.
type Meta struct {
	ID            string    `json:"id"`
	SpreadsheetID string    `json:"spreadsheet_id,omitempty"`
	Range         string    `json:"range"`
	Hash          string    `json:"hash"`
	FetchedAt     time.Time `json:"fetched_at"`
	Rows          int       `json:"rows"`
	Records       int       `json:"records"`
}

// NewSnapshot normalizes rows and freezes the result. Any fatal
// normalization error is returned and no snapshot is produced.
func NewSnapshot(src sheets.SourceRef, rows []core.RawRow, fetchedAt time.Time) (*Snapshot, error) {
	records, err := core.Normalize(rows)
	if err != nil {
		return nil, err
	}
	hash, err := HashRows(rows)
	if err != nil {
		return nil, err
	}

	frozen := make([]core.RawRow, len(rows))
	for i, r := range rows {
		frozen[i] = slices.Clone(r)
	}
	depts, prods := core.Options(records)

	return &Snapshot{
		id:          uuid.NewString(),
		source:      src,
		hash:        hash,
		fetchedAt:   fetchedAt.UTC(),
		rows:        frozen,
		records:     records,
		departments: depts,
		products:    prods,
	}, nil
}

// Build fetches every row from f and turns them into a Snapshot.
func Build(ctx context.Context, f sheets.RowFetcher, now time.Time) (*Snapshot, error) {
	rows, err := f.FetchRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.Source(), err)
	}
	snap, err := NewSnapshot(f.Source(), rows, now)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", f.Source(), err)
	}
	return snap, nil
}

// HashRows returns the hex SHA-256 of the JSON encoding of rows. Two fetches
// of an unchanged sheet hash identically.
func HashRows(rows []core.RawRow) (string, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Snapshot) ID() string               { return s.id }
func (s *Snapshot) Source() sheets.SourceRef { return s.source }
func (s *Snapshot) Hash() string             { return s.hash }
func (s *Snapshot) FetchedAt() time.Time     { return s.fetchedAt }
func (s *Snapshot) Len() int                 { return len(s.records) }

// Records returns a copy of the normalized records in date order.
func (s *Snapshot) Records() []core.Record {
	return slices.Clone(s.records)
}

// Rows returns a copy of the raw rows the snapshot was built from, header first.
func (s *Snapshot) Rows() []core.RawRow {
	out := make([]core.RawRow, len(s.rows))
	for i, r := range s.rows {
		out[i] = slices.Clone(r)
	}
	return out
}

// Options returns the distinct departments and products in order of first appearance.
func (s *Snapshot) Options() (departments, products []string) {
	return slices.Clone(s.departments), slices.Clone(s.products)
}

func (s *Snapshot) Meta() Meta {
	rows := len(s.rows) - 1
	if rows < 0 {
		rows = 0
	}
	return Meta{
		ID:            s.id,
		SpreadsheetID: s.source.SpreadsheetID,
		Range:         s.source.Range,
		Hash:          s.hash,
		FetchedAt:     s.fetchedAt,
		Rows:          rows,
		Records:       len(s.records),
	}
}
