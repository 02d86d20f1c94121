package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/payallenka/isl/internal/core/domain"
)

// =============================================================================
// RateLimiter Tests
// =============================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/predict/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }

	h := rl.Middleware(okHandler())

	first := doRequest(h, "10.0.0.1:1234")
	checkHeader(t, first, "x-ratelimit-limit-requests", "2")
	checkHeader(t, first, "x-ratelimit-remaining-requests", "1")

	second := doRequest(h, "10.0.0.1:1235")
	if second.Code != http.StatusOK {
		t.Fatalf("second request status = %d, want 200", second.Code)
	}
	checkHeader(t, second, "x-ratelimit-remaining-requests", "0")

	third := doRequest(h, "10.0.0.1:1236")
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", third.Code)
	}
	checkHeader(t, third, "Retry-After", "1")

	var body map[string]string
	if err := json.NewDecoder(third.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("error = %q", body["error"])
	}

	// A different client has its own bucket.
	if rec := doRequest(h, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	h := rl.Middleware(okHandler())
	if rec := doRequest(h, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := doRequest(h, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	now = now.Add(time.Second)
	if rec := doRequest(h, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Errorf("status after refill = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_SetLimit(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }
	h := rl.Middleware(okHandler())

	doRequest(h, "10.0.0.1:1")
	if rec := doRequest(h, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	rl.SetLimit(0, 0)
	if rec := doRequest(h, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Errorf("status with limiting disabled = %d, want 200", rec.Code)
	}
	if rec := doRequest(h, "10.0.0.1:1"); rec.Header().Get("x-ratelimit-limit-requests") != "" {
		t.Error("disabled limiter should not set headers")
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(idleLimiterTTL + time.Second)
	rl.allow("b")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.clients["a"]; ok {
		t.Error("idle client should be evicted")
	}
	if len(rl.clients) != 1 {
		t.Errorf("clients = %d, want 1", len(rl.clients))
	}
}

func checkHeader(t *testing.T, rec *httptest.ResponseRecorder, name, want string) {
	t.Helper()
	if got := rec.Header().Get(name); got != want {
		t.Errorf("header %s = %q, want %q", name, got, want)
	}
}

// =============================================================================
// RequestIDMiddleware Tests
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("Expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
}

func TestRequestIDMiddleware_KeepsClientID(t *testing.T) {
	wrapped := RequestIDMiddleware(okHandler())

	id := uuid.NewString()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", id)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	checkHeader(t, rec, "X-Request-ID", id)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "not a uuid")
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == "not a uuid" || got == "" {
		t.Errorf("X-Request-ID = %q, want a generated ID", got)
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	wrapped := RequestIDMiddleware(okHandler())

	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, httptest.NewRequest("GET", "/", nil))
	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, httptest.NewRequest("GET", "/", nil))

	if id1, id2 := rec1.Header().Get("X-Request-ID"), rec2.Header().Get("X-Request-ID"); id1 == id2 {
		t.Errorf("Expected unique request IDs, got same: %s", id1)
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("Expected empty string, got %q", id)
	}
}

// =============================================================================
// TimeoutMiddleware Tests
// =============================================================================

func TestTimeoutMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Error("Expected context to have deadline")
		}
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	TimeoutMiddleware(30*time.Second)(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	contextCancelled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			contextCancelled = true
		case <-time.After(100 * time.Millisecond):
		}
		w.WriteHeader(http.StatusOK)
	})

	TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !contextCancelled {
		t.Error("Expected context to be cancelled due to timeout")
	}
}

func TestTimeoutMiddleware_Disabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("zero timeout should not set a deadline")
		}
	})
	TimeoutMiddleware(0)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

type stubAuthenticator struct {
	users map[string]*domain.User
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, errors.New("token is malformed")
}

func TestAuthMiddleware(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "a@example.com"}
	authn := stubAuthenticator{users: map[string]*domain.User{"good": user}}

	tests := []struct {
		name     string
		header   string
		wantUser bool
	}{
		{"valid token", "Bearer good", true},
		{"lowercase scheme", "bearer good", true},
		{"anonymous", "", false},
		{"invalid token stays anonymous", "Bearer bad", false},
		{"other scheme", "Basic Z29vZA==", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser *domain.User
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/api/transactions/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(authn)(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if (gotUser != nil) != tt.wantUser {
				t.Errorf("user = %v, wantUser %v", gotUser, tt.wantUser)
			}
			if tt.wantUser && gotUser.ID != user.ID {
				t.Errorf("user ID = %v, want %v", gotUser.ID, user.ID)
			}
		})
	}
}

func TestAuthMiddleware_LogsInvalidToken(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := LoggingMiddleware(logger)(AuthMiddleware(stubAuthenticator{})(okHandler()))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "token is malformed") {
		t.Errorf("log = %s, want the token error", buf.String())
	}
}

func TestUserFromContext_NotSet(t *testing.T) {
	if u := UserFromContext(context.Background()); u != nil {
		t.Errorf("Expected nil, got %v", u)
	}
}

// =============================================================================
// LoggingMiddleware Tests
// =============================================================================

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrapped := RequestIDMiddleware(LoggingMiddleware(logger)(testHandler))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test-path", nil))

	output := buf.String()
	for _, want := range []string{"request started", "request completed", "/test-path", "bytes=2"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in log output, got: %s", want, output)
		}
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusBadRequest, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf strings.Builder
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
			if !strings.Contains(buf.String(), tt.level) {
				t.Errorf("log = %s, want %s", buf.String(), tt.level)
			}
		})
	}
}

func TestAddLogField(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "custom_field", "custom_value")
		AddLogField(r.Context(), "empty_field", "")
		w.WriteHeader(http.StatusOK)
	})

	LoggingMiddleware(logger)(testHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	output := buf.String()
	if !strings.Contains(output, "custom_field=custom_value") {
		t.Errorf("Expected custom field in log output, got: %s", output)
	}
	if strings.Contains(output, "empty_field") {
		t.Errorf("Empty field should not be in log output, got: %s", output)
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	AddLogField(context.Background(), "key", "value")
}

func TestAddError(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddError(r.Context(), errors.New("test error message"))
		AddError(r.Context(), nil)
		w.WriteHeader(http.StatusInternalServerError)
	})

	LoggingMiddleware(logger)(testHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !strings.Contains(buf.String(), "test error message") {
		t.Errorf("Expected error in log output, got: %s", buf.String())
	}
}

// =============================================================================
// Server Tests
// =============================================================================

func TestServer_Recovers(t *testing.T) {
	srv := New(Options{Logger: slog.New(slog.NewTextHandler(&strings.Builder{}, nil))})
	srv.Router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request ID should be set on recovered responses")
	}
}
