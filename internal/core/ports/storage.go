package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/payallenka/isl/internal/core/domain"
)

// UserStore defines the interface for account storage
type UserStore interface {
	// CreateUser stores a new user. Returns domain.ErrEmailTaken on conflict.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByEmail retrieves a user by email. Returns domain.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetUser retrieves a user by ID. Returns domain.ErrNotFound.
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// TouchLogin records a successful sign-in
	TouchLogin(ctx context.Context, id uuid.UUID) error
}

// TransactionStore defines the interface for prediction transaction storage
type TransactionStore interface {
	// RecordTransaction saves a transaction
	RecordTransaction(ctx context.Context, tx *domain.Transaction) error

	// ListTransactions lists transactions newest first
	ListTransactions(ctx context.Context, opts ListOptions) ([]*domain.Transaction, error)
}

// StorageProvider is the full storage backend.
// Implementations: sqlite (default), postgres, memory.
type StorageProvider interface {
	UserStore
	TransactionStore

	// Close closes the storage connection
	Close() error
}

// ListOptions contains options for listing transactions
type ListOptions struct {
	// UserID restricts the listing to one user. uuid.Nil lists everyone.
	UserID uuid.UUID
	Limit  int
	Offset int
}
