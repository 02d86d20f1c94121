// Package storage selects a storage backend from configuration.
package storage

import (
	"fmt"

	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/pkg/config"
	"github.com/payallenka/isl/internal/storage/memory"
	"github.com/payallenka/isl/internal/storage/sqldb"
)

// Open returns the backend named by cfg.Type: sqlite (default), postgres or memory.
func Open(cfg config.StorageConfig) (ports.StorageProvider, error) {
	switch cfg.Type {
	case "", "sqlite":
		return sqldb.NewSQLite(cfg.SQLite.Path)
	case "postgres", "postgresql":
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("storage.database.dsn is required for postgres")
		}
		return sqldb.NewPostgres(cfg.Database.DSN)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
