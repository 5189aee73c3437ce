package storage

import (
	"context"
	"errors"
	"fmt"

	"insight/internal/core"
	"insight/internal/sheets"
)

// ArchiveFetcher replays the latest archived copy of a spreadsheet range as
// if it were the live sheet. The dashboard uses it when a worker owns the
// fetch from Google.
type ArchiveFetcher struct {
	repo   *SQLiteRepository
	source sheets.SourceRef
}

// Ensure interface conformance
var _ sheets.RowFetcher = (*ArchiveFetcher)(nil)

func NewArchiveFetcher(repo *SQLiteRepository, src sheets.SourceRef) *ArchiveFetcher {
	return &ArchiveFetcher{repo: repo, source: src}
}

func (f *ArchiveFetcher) Source() sheets.SourceRef {
	return f.source
}

func (f *ArchiveFetcher) FetchRows(ctx context.Context) ([]core.RawRow, error) {
	d, err := f.repo.Latest(ctx, f.source)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("no archived copy of %s: %w", f.source, core.ErrEmptySource)
	}
	if err != nil {
		return nil, err
	}
	rows := make([]core.RawRow, len(d.Rows))
	for i, r := range d.Rows {
		rows[i] = core.RawRow(r)
	}
	return rows, nil
}
