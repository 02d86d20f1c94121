package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	store, err := NewSQLite("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLDBStore_CreateUser(t *testing.T) {
	store := newTestStore(t, "users1")
	ctx := context.Background()

	user := &domain.User{Email: "Ana@Example.com", DisplayName: "Ana", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.ID == uuid.Nil {
		t.Fatal("CreateUser() should assign an ID")
	}

	got, err := store.GetUserByEmail(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != user.ID || got.DisplayName != "Ana" || got.PasswordHash != "hash" {
		t.Errorf("GetUserByEmail() = %+v", got)
	}
	if got.LastLogin != nil {
		t.Errorf("LastLogin = %v, want nil", got.LastLogin)
	}

	byID, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if byID.Email != "ana@example.com" {
		t.Errorf("Email = %q", byID.Email)
	}
}

func TestSQLDBStore_DuplicateEmail(t *testing.T) {
	store := newTestStore(t, "users2")
	ctx := context.Background()

	if err := store.CreateUser(ctx, &domain.User{Email: "dup@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	err := store.CreateUser(ctx, &domain.User{Email: "DUP@example.com"})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("CreateUser() error = %v, want ErrEmailTaken", err)
	}
}

func TestSQLDBStore_NotFound(t *testing.T) {
	store := newTestStore(t, "users3")
	ctx := context.Background()

	if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetUserByEmail() error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetUser(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetUser() error = %v, want ErrNotFound", err)
	}
	if err := store.TouchLogin(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("TouchLogin() error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_TouchLogin(t *testing.T) {
	store := newTestStore(t, "users4")
	ctx := context.Background()

	user := &domain.User{Email: "login@example.com"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := store.TouchLogin(ctx, user.ID); err != nil {
		t.Fatalf("TouchLogin() error = %v", err)
	}

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.LastLogin == nil {
		t.Error("LastLogin should be set after TouchLogin")
	}
}

func TestSQLDBStore_Transactions(t *testing.T) {
	store := newTestStore(t, "tx1")
	ctx := context.Background()

	alice := &domain.User{Email: "alice@example.com"}
	bob := &domain.User{Email: "bob@example.com"}
	for _, u := range []*domain.User{alice, bob} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
	}

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*domain.Transaction{
		{UserID: alice.ID, Timestamp: base, Status: domain.TransactionSuccess,
			ResponseData: json.RawMessage(`{"gesture":"HELLO","confidence":0.9}`)},
		{UserID: bob.ID, Timestamp: base.Add(time.Minute), Status: domain.TransactionError,
			ResponseData: json.RawMessage(`{"error":"bad shape"}`)},
		{UserID: alice.ID, Timestamp: base.Add(2 * time.Minute), Status: domain.TransactionSuccess,
			RequestData:  json.RawMessage(`{"keypoints":[]}`),
			ResponseData: json.RawMessage(`{"gesture":"THANKS","confidence":0.8}`)},
	}
	for _, tx := range records {
		if err := store.RecordTransaction(ctx, tx); err != nil {
			t.Fatalf("RecordTransaction() error = %v", err)
		}
	}

	all, err := store.ListTransactions(ctx, ports.ListOptions{})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != records[2].ID || all[2].ID != records[0].ID {
		t.Error("transactions should be newest first")
	}

	mine, err := store.ListTransactions(ctx, ports.ListOptions{UserID: alice.ID})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("len = %d, want 2", len(mine))
	}
	if s := mine[0].Summary(); s.Gesture == nil || *s.Gesture != "THANKS" {
		t.Errorf("latest gesture = %v, want THANKS", s.Gesture)
	}
	if mine[1].RequestData != nil {
		t.Errorf("RequestData = %s, want nil", mine[1].RequestData)
	}

	page, err := store.ListTransactions(ctx, ports.ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(page) != 1 || page[0].ID != records[1].ID {
		t.Errorf("page = %+v, want the middle record", page)
	}
}

func TestSQLDBStore_DialectAccessor(t *testing.T) {
	store := newTestStore(t, "dialect1")

	if store.Dialect().Name() != "sqlite" {
		t.Errorf("Dialect().Name() = %v, want sqlite", store.Dialect().Name())
	}
	if store.DB() == nil {
		t.Error("DB() should not be nil")
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Error("New() should reject unsupported driver")
	}
}
