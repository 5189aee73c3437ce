package backend

import (
	"context"
	"fmt"

	"insight/internal/log"
	"insight/internal/sheets"
	gsheet "insight/internal/sheets/google"
	"insight/internal/sheets/memory"
	"insight/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.NewDefault()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	rng := config.GoogleSpreadsheetRange
	if rng == "" {
		rng = gsheet.DefaultRange
	}
	src := sheets.SourceRef{SpreadsheetID: config.GoogleSpreadsheetID, Range: rng}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		log.FieldSpreadsheetID, src.SpreadsheetID,
		log.FieldRange, src.Range)

	// The archive is read-only here; the worker writes it.
	return &Result{
		Fetcher:    storage.NewArchiveFetcher(repo, src),
		Repository: repo,
		Cleanup:    repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		Range:              config.GoogleSpreadsheetRange,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", log.FieldRange, cli.Source().String())
	return f.withArchive(config, &Result{Fetcher: cli})
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend",
		"seed_file", config.SeedFile,
		log.FieldRange, store.Source().Range)
	return f.withArchive(config, &Result{Fetcher: store})
}

func (f *DefaultFactory) withArchive(config Config, res *Result) (*Result, error) {
	if !config.Archive {
		return res, nil
	}
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	f.logger.Info("Archiving snapshots", "db_path", config.SQLiteDBPath)

	res.Archiver = repo
	res.Repository = repo
	res.Cleanup = repo.Close
	return res, nil
}
