package backend

import (
	"errors"
	"fmt"

	"insight/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Archive database. Required by the sqlite backend and by Archive.
	SQLiteDBPath string
	// Archive stores every changed snapshot in SQLiteDBPath.
	Archive bool

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSpreadsheetRange   string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Memory backend specific
	SeedFile string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	keyFile := appConfig.GoogleServiceAccountFile
	if keyFile == "" {
		keyFile = appConfig.GoogleApplicationCredFile
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		Archive:      appConfig.ArchiveEnabled,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSpreadsheetRange:   appConfig.GoogleSpreadsheetRange,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: keyFile,

		SeedFile: appConfig.SeedFile,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
	case MemoryBackend:
		// A missing seed file falls back to the demo dataset.
	}

	if c.Archive && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required when archiving")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, MemoryBackend}
}
