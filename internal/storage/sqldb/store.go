package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/storage/dialect"
)

// Store is a SQL implementation of ports.StorageProvider that supports
// SQLite and PostgreSQL.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.StorageProvider = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite opens a SQLite database file (or a "file:...?mode=memory" DSN).
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// NewPostgres connects to PostgreSQL through the pgx database/sql driver.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "pgx", DSN: dsn})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	js := s.dialect.JSONType()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
id TEXT PRIMARY KEY,
email TEXT NOT NULL UNIQUE,
password_hash TEXT NOT NULL DEFAULT '',
created_at %s NOT NULL,
last_login %s
)`, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transactions (
id TEXT PRIMARY KEY,
user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
created_at %s NOT NULL,
request_data %s,
response_data %s,
status TEXT NOT NULL
)`, ts, js, js),
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return s.runMigrations()
}

func (s *Store) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"users", "display_name", "ALTER TABLE users ADD COLUMN display_name TEXT NOT NULL DEFAULT ''"},
	}

	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", m.table, m.column, err)
		}
		if !exists {
			if _, err := s.db.Exec(m.ddl); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", m.table, m.column, err)
			}
		}
	}

	return nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	var count int
	if err := s.db.QueryRow(s.dialect.ColumnExistsQuery(), table, column).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

type userRow struct {
	ID           uuid.UUID  `db:"id"`
	Email        string     `db:"email"`
	DisplayName  string     `db:"display_name"`
	PasswordHash string     `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLogin    *time.Time `db:"last_login"`
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		LastLogin:    r.LastLogin,
	}
}

const userColumns = `id, email, display_name, password_hash, created_at, last_login`

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = strings.ToLower(user.Email)

	query := s.dialect.Rebind(`INSERT INTO users (id, email, display_name, password_hash, created_at)
	          VALUES (?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt)
	if s.dialect.IsUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.dialect.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) TouchLogin(ctx context.Context, id uuid.UUID) error {
	query := s.dialect.Rebind(`UPDATE users SET last_login = ? WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

type transactionRow struct {
	ID           uuid.UUID      `db:"id"`
	UserID       uuid.UUID      `db:"user_id"`
	CreatedAt    time.Time      `db:"created_at"`
	RequestData  sql.NullString `db:"request_data"`
	ResponseData sql.NullString `db:"response_data"`
	Status       string         `db:"status"`
}

func (r *transactionRow) toDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:        r.ID,
		UserID:    r.UserID,
		Timestamp: r.CreatedAt,
		Status:    domain.TransactionStatus(r.Status),
	}
	if r.RequestData.Valid {
		tx.RequestData = json.RawMessage(r.RequestData.String)
	}
	if r.ResponseData.Valid {
		tx.ResponseData = json.RawMessage(r.ResponseData.String)
	}
	return tx
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func (s *Store) RecordTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	query := s.dialect.Rebind(`INSERT INTO transactions (id, user_id, created_at, request_data, response_data, status)
	          VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.Timestamp, nullJSON(tx.RequestData), nullJSON(tx.ResponseData), string(tx.Status))
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	return nil
}

func (s *Store) ListTransactions(ctx context.Context, opts ports.ListOptions) ([]*domain.Transaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100 // default limit
	}

	var (
		where string
		args  []any
	)
	if opts.UserID != uuid.Nil {
		where = "WHERE user_id = ?"
		args = append(args, opts.UserID)
	}
	args = append(args, limit, opts.Offset)

	query := s.dialect.Rebind(fmt.Sprintf(`SELECT id, user_id, created_at, request_data, response_data, status
	          FROM transactions %s
	          ORDER BY created_at DESC
	          LIMIT ? OFFSET ?`, where))

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	txs := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		txs = append(txs, rows[i].toDomain())
	}
	return txs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
