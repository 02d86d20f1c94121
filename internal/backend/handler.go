// Package backend implements the HTTP API in front of the model service:
// prediction proxying with transaction recording, history, profile and
// account endpoints.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/payallenka/isl/internal/authn"
	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/server"
	"github.com/payallenka/isl/internal/telemetry"
)

// maxRequestBody bounds prediction and auth request bodies. A full keypoint
// tensor is roughly 600KB of JSON.
const maxRequestBody = 4 << 20

const anonymousDisplayName = "Dummy User"

// Registration represents a registered HTTP handler.
type Registration struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// Predictor forwards a prediction body to the model service.
type Predictor interface {
	Predict(ctx context.Context, body []byte) (int, []byte, error)
}

// Handler serves the backend API.
type Handler struct {
	store     ports.StorageProvider
	auth      *authn.Service
	inference Predictor
	schema    *jsonschema.Schema
	logger    *slog.Logger
	tracer    trace.Tracer

	anonMu sync.Mutex
	anon   *domain.User
}

// NewHandler creates the API handler.
func NewHandler(store ports.StorageProvider, auth *authn.Service, inference Predictor, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compilePredictSchema()
	if err != nil {
		return nil, err
	}
	return &Handler{
		store:     store,
		auth:      auth,
		inference: inference,
		schema:    schema,
		logger:    logger,
		tracer:    telemetry.Tracer(),
	}, nil
}

// Routes returns every endpoint the handler serves.
func (h *Handler) Routes() []Registration {
	return []Registration{
		{Method: http.MethodPost, Path: "/api/predict/", Handler: h.HandlePredict},
		{Method: http.MethodGet, Path: "/api/transactions/", Handler: h.HandleTransactions},
		{Method: http.MethodGet, Path: "/api/logs/", Handler: h.HandleLogs},
		{Method: http.MethodGet, Path: "/api/profile/", Handler: h.HandleProfile},
		{Method: http.MethodPost, Path: "/api/auth/signup", Handler: h.HandleSignUp},
		{Method: http.MethodPost, Path: "/api/auth/signin", Handler: h.HandleSignIn},
		{Method: http.MethodPost, Path: "/api/auth/refresh", Handler: h.HandleRefresh},
		{Method: http.MethodGet, Path: "/health", Handler: h.HandleHealth},
	}
}

// HandlePredict validates the keypoint body, forwards it to the model
// service and records the outcome as a transaction.
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "predict-transaction")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		server.AddError(ctx, err)
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	user, err := h.requestUser(ctx)
	if err != nil {
		server.AddError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to resolve user")
		return
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	if err := validatePredictBody(h.schema, body); err != nil {
		msg := fmt.Sprintf("invalid prediction request: %v", err)
		server.AddLogField(ctx, "validation", "failed")
		span.SetStatus(codes.Error, "invalid request")
		h.record(ctx, user, body, errorPayload(msg), domain.TransactionError)
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	status, respBody, err := h.inference.Predict(ctx, body)
	span.SetAttributes(attribute.Int("upstream.status", status))

	switch {
	case err != nil:
		server.AddError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream unreachable")
		h.record(ctx, user, body, jsonValue([]byte(err.Error())), domain.TransactionError)
		writeError(w, http.StatusInternalServerError, err.Error())

	case status != http.StatusOK:
		span.SetStatus(codes.Error, "upstream error")
		h.record(ctx, user, body, jsonValue(respBody), domain.TransactionError)
		writeError(w, http.StatusInternalServerError, string(respBody))

	default:
		h.record(ctx, user, body, jsonValue(respBody), domain.TransactionSuccess)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(respBody)
	}
}

// HandleTransactions lists transaction summaries newest first. Signed-in
// callers see their own transactions, anonymous callers see all of them.
func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	txs, err := h.store.ListTransactions(r.Context(), opts)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	summaries := make([]domain.TransactionSummary, 0, len(txs))
	for _, tx := range txs {
		summaries = append(summaries, tx.Summary())
	}
	writeJSON(w, http.StatusOK, summaries)
}

// HandleLogs lists full transaction records, including request and response
// payloads.
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	txs, err := h.store.ListTransactions(r.Context(), opts)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// Profile is the body of GET /api/profile/.
type Profile struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login"`
}

// HandleProfile returns the signed-in user.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user := server.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, Profile{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
		LastLogin:   user.LastLogin,
	})
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestUser returns the signed-in user, or the shared anonymous user.
func (h *Handler) requestUser(ctx context.Context) (*domain.User, error) {
	if u := server.UserFromContext(ctx); u != nil {
		return u, nil
	}
	return h.anonymousUser(ctx)
}

func (h *Handler) anonymousUser(ctx context.Context) (*domain.User, error) {
	h.anonMu.Lock()
	defer h.anonMu.Unlock()
	if h.anon != nil {
		return h.anon, nil
	}

	u, err := h.store.GetUserByEmail(ctx, domain.AnonymousEmail)
	if errors.Is(err, domain.ErrNotFound) {
		u = &domain.User{
			ID:          uuid.New(),
			Email:       domain.AnonymousEmail,
			DisplayName: anonymousDisplayName,
			CreatedAt:   time.Now().UTC(),
		}
		err = h.store.CreateUser(ctx, u)
		if errors.Is(err, domain.ErrEmailTaken) {
			// created by another process between the lookup and the insert
			u, err = h.store.GetUserByEmail(ctx, domain.AnonymousEmail)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("anonymous user: %w", err)
	}

	h.anon = u
	return u, nil
}

// record stores a transaction. Failures are logged and do not change the
// response.
func (h *Handler) record(ctx context.Context, user *domain.User, request, response []byte, status domain.TransactionStatus) {
	tx := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       user.ID,
		Timestamp:    time.Now().UTC(),
		RequestData:  jsonValue(request),
		ResponseData: response,
		Status:       status,
	}
	if err := h.store.RecordTransaction(ctx, tx); err != nil {
		h.logger.ErrorContext(ctx, "failed to record transaction",
			slog.String("transaction_id", tx.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	server.AddLogField(ctx, "transaction_id", tx.ID.String())
	server.AddLogField(ctx, "transaction_status", string(status))
}

func (h *Handler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		status := authErr.StatusCode
		if status == 0 {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, domain.ErrorBody{Error: authErr.Message, Code: authErr.Code})
		return
	}
	writeJSON(w, http.StatusInternalServerError, domain.ErrorBody{Error: domain.FriendlyAuthMessage("")})
}

// listOptions scopes a listing to the caller and applies ?limit and ?offset.
func listOptions(w http.ResponseWriter, r *http.Request) (ports.ListOptions, bool) {
	var opts ports.ListOptions
	if u := server.UserFromContext(r.Context()); u != nil {
		opts.UserID = u.ID
	}

	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
			return opts, false
		}
		*dst = n
	}
	return opts, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v); err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// jsonValue returns b if it is valid JSON, otherwise b encoded as a JSON
// string. Record columns only hold valid JSON.
func jsonValue(b []byte) json.RawMessage {
	if len(b) > 0 && json.Valid(b) {
		return b
	}
	s, _ := json.Marshal(string(b))
	return s
}

func errorPayload(msg string) json.RawMessage {
	b, _ := json.Marshal(domain.ErrorBody{Error: msg})
	return b
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, domain.ErrorBody{Error: msg})
}
