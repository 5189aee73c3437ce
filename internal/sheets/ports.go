package sheets

import (
	"context"
	"fmt"

	"insight/internal/core"
)

// SourceRef names the external range a fetcher reads.
type SourceRef struct {
	SpreadsheetID string
	Range         string
}

func (r SourceRef) String() string {
	if r.SpreadsheetID == "" {
		return r.Range
	}
	return fmt.Sprintf("%s!%s", r.SpreadsheetID, r.Range)
}

// Ports for inbound adapters.
type (
	// RowFetcher returns every row of its range, header first. Cells are
	// returned as plain strings without trimming.
	RowFetcher interface {
		FetchRows(ctx context.Context) ([]core.RawRow, error)
		Source() SourceRef
	}
)
