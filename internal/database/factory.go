package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gcalvault/internal/config"
	"gcalvault/internal/gcalvault"
)

// NewDatabaseFromConfig opens the database selected by the config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock gcalvault.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteDatabase(cfg.Path, clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
