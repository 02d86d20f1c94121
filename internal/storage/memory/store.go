package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
)

// Store is an in-memory implementation of ports.StorageProvider
type Store struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]*domain.User
	byEmail      map[string]uuid.UUID
	transactions []*domain.Transaction
}

var _ ports.StorageProvider = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		users:   make(map[uuid.UUID]*domain.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return domain.ErrEmailTaken
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = email

	stored := *user
	s.users[user.ID] = &stored
	s.byEmail[email] = user.ID
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEmail[strings.ToLower(email)]
	if !exists {
		return nil, domain.ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *Store) TouchLogin(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	user.LastLogin = &now
	return nil
}

func (s *Store) RecordTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	stored := *tx
	s.transactions = append(s.transactions, &stored)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, opts ports.ListOptions) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if opts.UserID != uuid.Nil && tx.UserID != opts.UserID {
			continue
		}
		t := *tx
		result = append(result, &t)
	}

	// Newest first; insertion order breaks ties.
	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b *domain.Transaction) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	// Simple pagination
	start := opts.Offset
	if start >= len(result) {
		return []*domain.Transaction{}, nil
	}

	end := start + opts.Limit
	if opts.Limit <= 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) Close() error {
	return nil
}
