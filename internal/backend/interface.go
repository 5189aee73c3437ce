package backend

import (
	"context"

	"insight/internal/dataset"
	"insight/internal/sheets"
	"insight/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds what a dataset store needs: where rows come from and,
// optionally, where fetched snapshots are archived.
type Result struct {
	Fetcher sheets.RowFetcher
	// Archiver is nil when archiving is disabled.
	Archiver dataset.Archiver
	// Repository is the archive database when one was opened.
	Repository *storage.SQLiteRepository
	Cleanup    CleanupFunc
}

// Close runs Cleanup if set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	// SQLiteBackend serves the latest copy a worker archived.
	SQLiteBackend BackendType = "sqlite"
	// SheetsBackend reads Google Sheets directly.
	SheetsBackend BackendType = "sheets"
	// MemoryBackend serves a seed CSV or the built-in demo data.
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
