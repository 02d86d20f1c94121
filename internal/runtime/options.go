package runtime

import (
	"fmt"
	"log/slog"

	"github.com/payallenka/isl/internal/adapters/config/file"
	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/storage/memory"
	"github.com/payallenka/isl/internal/storage/sqldb"
)

// Option is a functional option for configuring a Backend.
type Option func(*Backend) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(b *Backend) error {
		provider, err := file.NewProvider(path, b.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		b.config = provider
		return nil
	}
}

// WithSQLite uses SQLite storage (default for single-instance deployments).
func WithSQLite(path string) Option {
	return func(b *Backend) error {
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		b.storage = store
		return nil
	}
}

// WithPostgres uses PostgreSQL storage.
func WithPostgres(dsn string) Option {
	return func(b *Backend) error {
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		b.storage = store
		return nil
	}
}

// WithMemoryStorage keeps users and transactions in process memory.
func WithMemoryStorage() Option {
	return func(b *Backend) error {
		b.storage = memory.New()
		return nil
	}
}

// WithLogger sets a custom logger.
// Pass it before WithFileConfig so the config provider logs through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) error {
		b.logger = logger
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
// For advanced use cases where you need full control over config loading.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(b *Backend) error {
		b.config = provider
		return nil
	}
}

// WithStorageProvider sets a custom storage provider.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(b *Backend) error {
		b.storage = provider
		return nil
	}
}
