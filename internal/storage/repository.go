package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"insight/internal/dataset"
	"insight/internal/log"
	"insight/internal/sheets"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no dataset has been archived for a source.
var ErrNotFound = errors.New("dataset not found")

// Dataset is one archived copy of a spreadsheet range.
type Dataset struct {
	ID               int64
	CreatedAt        time.Time
	SpreadsheetID    string
	SpreadsheetRange string
	SpreadsheetHash  string
	RowCount         int
	Rows             [][]string
}

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

// Ensure interface conformance
var _ dataset.Archiver = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.NewDefault()
	}
	logger = logger.WithComponent(log.ComponentStorage)
	if v, dirty, err := SchemaVersion(dbPath); err == nil {
		logger.Debug("Archive schema ready", "path", dbPath, "version", v, "dirty", dirty)
	}
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Archive stores the snapshot's raw rows unless the latest archived copy of
// the same spreadsheet range already has the same hash.
func (r *SQLiteRepository) Archive(ctx context.Context, snap *dataset.Snapshot) (dataset.ArchiveResult, error) {
	src := snap.Source()
	rows := snap.Rows()
	data, err := json.Marshal(rows)
	if err != nil {
		return dataset.ArchiveResult{}, fmt.Errorf("encode rows: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dataset.ArchiveResult{}, fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	var (
		latestID   int64
		latestHash string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, spreadsheet_hash FROM dataset
		WHERE spreadsheet_id = ? AND spreadsheet_range = ?
		ORDER BY id DESC LIMIT 1`, src.SpreadsheetID, src.Range).Scan(&latestID, &latestHash)
	switch {
	case err == nil && latestHash == snap.Hash():
		return dataset.ArchiveResult{ID: latestID, Created: false}, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return dataset.ArchiveResult{}, fmt.Errorf("read latest dataset: %w", err)
	}

	rowCount := len(rows) - 1
	if rowCount < 0 {
		rowCount = 0
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO dataset (created_at, spreadsheet_id, spreadsheet_range, spreadsheet_hash, row_count, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.FetchedAt().UTC().Format(time.RFC3339Nano), src.SpreadsheetID, src.Range, snap.Hash(), rowCount, string(data))
	if err != nil {
		return dataset.ArchiveResult{}, fmt.Errorf("insert dataset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return dataset.ArchiveResult{}, fmt.Errorf("dataset id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return dataset.ArchiveResult{}, fmt.Errorf("commit archive: %w", err)
	}

	r.logger.InfoContext(ctx, "Dataset archived",
		"archive_id", id,
		log.FieldDatasetHash, snap.Hash(),
		log.FieldSpreadsheetID, src.SpreadsheetID,
		log.FieldRange, src.Range,
		log.FieldRowCount, rowCount)
	return dataset.ArchiveResult{ID: id, Created: true}, nil
}

// Latest returns the newest archived dataset for src.
func (r *SQLiteRepository) Latest(ctx context.Context, src sheets.SourceRef) (Dataset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, spreadsheet_id, spreadsheet_range, spreadsheet_hash, row_count, data
		FROM dataset
		WHERE spreadsheet_id = ? AND spreadsheet_range = ?
		ORDER BY id DESC LIMIT 1`, src.SpreadsheetID, src.Range)
	return scanDataset(row)
}

func scanDataset(row *sql.Row) (Dataset, error) {
	var (
		d       Dataset
		created string
		data    string
	)
	err := row.Scan(&d.ID, &created, &d.SpreadsheetID, &d.SpreadsheetRange, &d.SpreadsheetHash, &d.RowCount, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("scan dataset: %w", err)
	}
	d.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Dataset{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if err := json.Unmarshal([]byte(data), &d.Rows); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset %d: %w", d.ID, err)
	}
	return d, nil
}
