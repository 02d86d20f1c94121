package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
)

// Service implements sign-up, sign-in and refresh over a user store.
type Service struct {
	users  ports.UserStore
	tokens *TokenManager
	logger *slog.Logger
}

// NewService creates an auth service.
func NewService(users ports.UserStore, tokens *TokenManager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Tokens returns the token manager.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*domain.AuthSession, error) {
	email, ok := normalizeEmail(email)
	if !ok {
		return nil, domain.NewAuthError(domain.AuthCodeInvalidEmail, http.StatusBadRequest)
	}
	if len(password) < domain.MinPasswordLength {
		return nil, domain.NewAuthError(domain.AuthCodeWeakPassword, http.StatusBadRequest)
	}

	hash, err := HashPassword(password)
	if err != nil {
		authErr := domain.NewAuthError(domain.AuthCodeWeakPassword, http.StatusBadRequest)
		authErr.Err = err
		return nil, authErr
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, domain.NewAuthError(domain.AuthCodeEmailInUse, http.StatusConflict)
		}
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("user_id", user.ID.String()))
	return s.tokens.Issue(user)
}

// SignIn checks credentials and issues tokens.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	email, ok := normalizeEmail(email)
	if !ok {
		return nil, domain.NewAuthError(domain.AuthCodeInvalidEmail, http.StatusBadRequest)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewAuthError(domain.AuthCodeUserNotFound, http.StatusUnauthorized)
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		// the anonymous account cannot sign in
		return nil, domain.NewAuthError(domain.AuthCodeUserDisabled, http.StatusForbidden)
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, domain.NewAuthError(domain.AuthCodeWrongPassword, http.StatusUnauthorized)
	}

	if err := s.users.TouchLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record login", slog.String("error", err.Error()))
	}

	return s.tokens.Issue(user)
}

// Refresh exchanges a refresh token for a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		authErr := domain.NewAuthError(domain.AuthCodeInvalidToken, http.StatusUnauthorized)
		authErr.Err = err
		return nil, authErr
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, domain.NewAuthError(domain.AuthCodeInvalidToken, http.StatusUnauthorized)
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewAuthError(domain.AuthCodeUserNotFound, http.StatusUnauthorized)
		}
		return nil, err
	}
	return s.tokens.Issue(user)
}

// Authenticate resolves an ID token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return s.users.GetUser(ctx, id)
}

func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	return email, true
}
