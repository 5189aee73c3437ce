package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"insight/internal/core"
	ports "insight/internal/sheets"
)

// Store serves rows held in memory, loaded from a seed CSV or built in.
type Store struct {
	mu     sync.Mutex
	source ports.SourceRef
	rows   []core.RawRow
}

// Ensure interface conformance
var _ ports.RowFetcher = (*Store)(nil)

// New returns a store serving rows under the given range name.
func New(rangeName string, rows []core.RawRow) *Store {
	s := &Store{source: ports.SourceRef{Range: rangeName}}
	s.Replace(rows)
	return s
}

// NewFromFile loads a seed CSV. A missing file falls back to the built-in
// demo dataset so the dashboard has something to show out of the box.
func NewFromFile(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return New("demo", DemoRows()), nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New("demo", DemoRows()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return New(filepath.Base(path), rows), nil
}

// ReadCSV reads every record of r as a raw row. Rows may have differing
// lengths, as they do in a sheet export.
func ReadCSV(r io.Reader) ([]core.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	rows := make([]core.RawRow, len(records))
	for i, rec := range records {
		rows[i] = core.RawRow(rec)
	}
	return rows, nil
}

// FetchRows returns a copy of the held rows. An empty store reports
// core.ErrEmptySource like a blank sheet would.
func (s *Store) FetchRows(ctx context.Context) ([]core.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return nil, core.ErrEmptySource
	}
	return cloneRows(s.rows), nil
}

func (s *Store) Source() ports.SourceRef {
	return s.source
}

// Replace swaps the held rows, as if the sheet had been edited.
func (s *Store) Replace(rows []core.RawRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = cloneRows(rows)
}

func cloneRows(in []core.RawRow) []core.RawRow {
	out := make([]core.RawRow, len(in))
	for i, r := range in {
		out[i] = slices.Clone(r)
	}
	return out
}

// DemoRows returns a small year of sales across three departments and three
// products, formatted the way the sheet formats them.
func DemoRows() []core.RawRow {
	departments := []string{"Retail", "Online", "Wholesale"}
	products := []string{"Widget", "Gadget", "Gizmo"}

	rows := []core.RawRow{core.Columns()}
	for month := 1; month <= 12; month++ {
		for di, dept := range departments {
			for pi, prod := range products {
				sales := int64(1000 + 250*di + 120*pi + 35*month)
				cogs := sales * int64(55+5*pi) / 100
				profit := sales - cogs
				if dept == "Wholesale" && month%5 == 0 {
					profit = -int64(80 + 10*pi)
				}
				rows = append(rows, core.RawRow{
					fmt.Sprintf("%02d/%02d/2021", month, 3+7*pi),
					dept,
					prod,
					accounting(sales),
					accounting(cogs),
					accounting(profit),
				})
			}
		}
	}
	return rows
}

// accounting formats whole dollars as "1,234.00", negatives in parentheses.
func accounting(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := fmt.Sprintf("%d", v)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(".00")
	if neg {
		return "(" + b.String() + ")"
	}
	return b.String()
}
