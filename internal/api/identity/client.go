// Package identity is the credential provider backed by the backend's
// /api/auth endpoints.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/payallenka/isl/internal/core/domain"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 10 * time.Second

	// refreshLeeway refreshes tokens this close to expiry.
	refreshLeeway = 30 * time.Second
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// Client holds the signed-in session in memory only.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	session   *domain.AuthSession
	listeners map[int]func(*domain.UserInfo)
	nextID    int

	// serializes refreshes
	refreshMu sync.Mutex
}

// NewClient creates a new identity client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		now:        time.Now,
		listeners:  make(map[int]func(*domain.UserInfo)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	c.logger.Info("signing in", slog.String("email", email))
	session, err := c.post(ctx, "/api/auth/signin", credentials{Email: email, Password: password})
	if err != nil {
		c.logger.Warn("sign in failed", slog.String("email", email), slog.String("error", err.Error()))
		return nil, err
	}
	c.setSession(session)
	return session, nil
}

// SignUp registers a new account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*domain.AuthSession, error) {
	c.logger.Info("signing up", slog.String("email", email))
	session, err := c.post(ctx, "/api/auth/signup", credentials{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		c.logger.Warn("sign up failed", slog.String("email", email), slog.String("error", err.Error()))
		return nil, err
	}
	c.setSession(session)
	return session, nil
}

// SignOut forgets the session. It never fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.mu.Unlock()

	if had {
		c.notify(nil)
	}
	return nil
}

// User returns the signed-in user, or nil.
func (c *Client) User() *domain.UserInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	u := c.session.User
	return &u
}

// CurrentToken returns a token valid for at least refreshLeeway, refreshing
// when needed. It returns "" when nobody is signed in.
func (c *Client) CurrentToken(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return "", nil
	}
	if session.ExpiresAt.IsZero() || c.now().Add(refreshLeeway).Before(session.ExpiresAt) {
		return session.IDToken, nil
	}

	refreshed, err := c.post(ctx, "/api/auth/refresh", refreshRequest{RefreshToken: session.RefreshToken})
	if err != nil {
		return "", domain.ErrAuthTokenUnavailable("failed to refresh token").WithCause(err)
	}

	c.mu.Lock()
	// a concurrent SignOut wins
	if c.session == session {
		c.session = refreshed
	}
	c.mu.Unlock()

	c.logger.Debug("token refreshed", slog.Time("expires_at", refreshed.ExpiresAt))
	return refreshed.IDToken, nil
}

// OnChange registers fn for sign-in and sign-out events.
func (c *Client) OnChange(fn func(*domain.UserInfo)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) setSession(session *domain.AuthSession) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	u := session.User
	c.notify(&u)
}

func (c *Client) notify(user *domain.UserInfo) {
	c.mu.Lock()
	fns := make([]func(*domain.UserInfo), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) (*domain.AuthSession, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		authErr := domain.NewAuthError(domain.AuthCodeNetworkFailed, 0)
		authErr.Err = err
		return nil, authErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		authErr := domain.NewAuthError(domain.AuthCodeNetworkFailed, 0)
		authErr.Err = err
		return nil, authErr
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var e domain.ErrorBody
		_ = json.Unmarshal(respBody, &e)
		if e.Code == "" && resp.StatusCode == http.StatusTooManyRequests {
			e.Code = domain.AuthCodeTooManyRequests
		}
		return nil, domain.NewAuthError(e.Code, resp.StatusCode)
	}

	var session domain.AuthSession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if session.IDToken == "" {
		return nil, fmt.Errorf("auth response carried no token")
	}
	if session.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(session.ExpiresIn) * time.Second)
	}
	return &session, nil
}
