package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payallenka/isl/internal/authn"
	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/server"
	"github.com/payallenka/isl/internal/storage/memory"
)

type testEnv struct {
	store    *memory.Store
	auth     *authn.Service
	router   http.Handler
	upstream *httptest.Server
	calls    atomic.Int32
	reply    func(w http.ResponseWriter, r *http.Request)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{store: memory.New()}
	env.reply = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"gesture":"hello","confidence":0.87}`))
	}
	env.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		env.reply(w, r)
	}))
	t.Cleanup(env.upstream.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := authn.NewTokenManager([]byte("test-secret"), "isl-test", time.Hour, 24*time.Hour)
	env.auth = authn.NewService(env.store, tokens, logger)

	h, err := NewHandler(env.store, env.auth, NewInferenceClient(env.upstream.URL, 5*time.Second), logger)
	require.NoError(t, err)

	srv := server.New(server.Options{Logger: logger, Authenticator: env.auth})
	for _, reg := range h.Routes() {
		srv.Router.Method(reg.Method, reg.Path, reg.Handler)
	}
	env.router = srv.Router
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signUp(t *testing.T, email string) *domain.AuthSession {
	t.Helper()
	session, err := e.auth.SignUp(context.Background(), email, "secret123", "")
	require.NoError(t, err)
	return session
}

func (e *testEnv) transactions(t *testing.T) []*domain.Transaction {
	t.Helper()
	txs, err := e.store.ListTransactions(context.Background(), ports.ListOptions{})
	require.NoError(t, err)
	return txs
}

func validBody(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(domain.PredictRequest{Keypoints: domain.NewKeypointTensor()})
	require.NoError(t, err)
	return b
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) domain.ErrorBody {
	t.Helper()
	var body domain.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandlePredict_AnonymousSuccess(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/predict/", "", validBody(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"gesture":"hello","confidence":0.87}`, rec.Body.String())

	txs := env.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionSuccess, txs[0].Status)
	assert.JSONEq(t, `{"gesture":"hello","confidence":0.87}`, string(txs[0].ResponseData))

	anon, err := env.store.GetUserByEmail(context.Background(), domain.AnonymousEmail)
	require.NoError(t, err)
	assert.Equal(t, "Dummy User", anon.DisplayName)
	assert.Equal(t, anon.ID, txs[0].UserID)

	// The anonymous user is reused.
	env.do(t, http.MethodPost, "/api/predict/", "", validBody(t))
	for _, tx := range env.transactions(t) {
		assert.Equal(t, anon.ID, tx.UserID)
	}
}

func TestHandlePredict_SignedInUser(t *testing.T) {
	env := newTestEnv(t)
	session := env.signUp(t, "signer@example.com")

	rec := env.do(t, http.MethodPost, "/api/predict/", session.IDToken, validBody(t))
	require.Equal(t, http.StatusOK, rec.Code)

	txs := env.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, session.User.ID, txs[0].UserID.String())
}

func TestHandlePredict_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"keypoints":`},
		{"missing keypoints", `{}`},
		{"wrong shape", `{"keypoints":[[1,2,3]]}`},
		{"non numeric", `{"keypoints":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/predict/", "", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec).Error, "invalid prediction request")
			assert.Zero(t, env.calls.Load(), "model service should not be called")

			txs := env.transactions(t)
			require.Len(t, txs, 1)
			assert.Equal(t, domain.TransactionError, txs[0].Status)
			assert.True(t, json.Valid(txs[0].RequestData))
		})
	}
}

func TestHandlePredict_UpstreamError(t *testing.T) {
	env := newTestEnv(t)
	env.reply = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("model crashed"))
	}

	rec := env.do(t, http.MethodPost, "/api/predict/", "", validBody(t))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "model crashed", decodeError(t, rec).Error)

	txs := env.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionError, txs[0].Status)
	assert.JSONEq(t, `"model crashed"`, string(txs[0].ResponseData))
}

func TestHandlePredict_UpstreamUnreachable(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.Close()

	rec := env.do(t, http.MethodPost, "/api/predict/", "", validBody(t))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec).Error)

	txs := env.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionError, txs[0].Status)
}

func TestHandleTransactions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/transactions/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	alice := env.signUp(t, "alice@example.com")
	env.do(t, http.MethodPost, "/api/predict/", alice.IDToken, validBody(t))
	env.do(t, http.MethodPost, "/api/predict/", "", validBody(t))
	env.do(t, http.MethodPost, "/api/predict/", "", []byte(`{}`))

	var all []domain.TransactionSummary
	rec = env.do(t, http.MethodGet, "/api/transactions/", "", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	require.Len(t, all, 3)
	assert.Equal(t, domain.TransactionError, all[0].Status, "newest first")
	assert.Nil(t, all[0].Gesture)
	require.NotNil(t, all[1].Gesture)
	assert.Equal(t, "hello", *all[1].Gesture)

	var own []domain.TransactionSummary
	rec = env.do(t, http.MethodGet, "/api/transactions/", alice.IDToken, nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&own))
	assert.Len(t, own, 1)

	var limited []domain.TransactionSummary
	rec = env.do(t, http.MethodGet, "/api/transactions/?limit=2", "", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&limited))
	assert.Len(t, limited, 2)

	rec = env.do(t, http.MethodGet, "/api/transactions/?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogs(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/predict/", "", validBody(t))

	rec := env.do(t, http.MethodGet, "/api/logs/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var logs []domain.Transaction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&logs))
	require.Len(t, logs, 1)
	assert.Contains(t, string(logs[0].RequestData), "keypoints")
	assert.Contains(t, string(logs[0].ResponseData), "hello")
}

func TestHandleProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/profile/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeError(t, rec).Error)

	rec = env.do(t, http.MethodGet, "/api/profile/", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	session := env.signUp(t, "bob@example.com")
	rec = env.do(t, http.MethodGet, "/api/profile/", session.IDToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, "bob@example.com", profile.Email)
	assert.Nil(t, profile.LastLogin)
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "",
		[]byte(`{"email":"carol@example.com","password":"secret123","display_name":"Carol"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	var session domain.AuthSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Equal(t, "Carol", session.User.DisplayName)
	assert.NotEmpty(t, session.RefreshToken)

	rec = env.do(t, http.MethodPost, "/api/auth/signup", "",
		[]byte(`{"email":"carol@example.com","password":"secret123"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.AuthCodeEmailInUse, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/auth/signin", "",
		[]byte(`{"email":"carol@example.com","password":"wrong-pass"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.AuthCodeWrongPassword, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/auth/signin", "",
		[]byte(`{"email":"carol@example.com","password":"secret123"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := json.Marshal(refreshRequest{RefreshToken: session.RefreshToken})
	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/refresh", "", []byte(`{"refresh_token":"junk"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.AuthCodeInvalidToken, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/auth/signin", "", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestInferenceClient_SetURL(t *testing.T) {
	var hits atomic.Int32
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(b), "ping"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer second.Close()

	c := NewInferenceClient("http://127.0.0.1:1/predict", time.Second)
	c.SetURL(second.URL)
	assert.Equal(t, second.URL, c.URL())

	status, body, err := c.Predict(context.Background(), []byte(`{"ping":true}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{}`, string(body))
	assert.Equal(t, int32(1), hits.Load())
}
