package changes

import (
	"fmt"

	"gcalvault/internal/config"
	"gcalvault/internal/database"
)

var _ Store = (*database.SQLiteDatabase)(nil)

// NewStoreFromConfig creates a Store from configuration. db backs the
// "sqlite" type and may be nil for the other types.
func NewStoreFromConfig(cfg config.ChangesConfig, db *database.SQLiteDatabase) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite change store requires a database")
		}
		return db, nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file change store requires path")
		}
		return NewFileStore(cfg.Path), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown change store type: %q", cfg.Type)
	}
}
