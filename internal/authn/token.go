// Package authn issues and verifies the backend's bearer tokens and checks
// account passwords.
package authn

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/payallenka/isl/internal/core/domain"
)

// TokenType separates ID tokens from refresh tokens.
type TokenType string

const (
	TokenID      TokenType = "id"
	TokenRefresh TokenType = "refresh"
)

// Claims extends standard JWT claims with the account fields.
type Claims struct {
	jwt.RegisteredClaims
	Email string    `json:"email,omitempty"`
	Type  TokenType `json:"typ"`
}

// UserID parses the subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// ErrWrongTokenType is returned when a refresh token is used as an ID token or vice versa.
var ErrWrongTokenType = errors.New("wrong token type")

// TokenManager handles token generation and validation (HS256).
type TokenManager struct {
	secret     []byte
	issuer     string
	ttl        time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager creates a token manager.
func NewTokenManager(secret []byte, issuer string, ttl, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     secret,
		issuer:     issuer,
		ttl:        ttl,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue creates an ID token and a refresh token for user.
func (tm *TokenManager) Issue(user *domain.User) (*domain.AuthSession, error) {
	now := tm.now().UTC()

	idToken, err := tm.sign(user, TokenID, now, tm.ttl)
	if err != nil {
		return nil, err
	}
	refreshToken, err := tm.sign(user, TokenRefresh, now, tm.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &domain.AuthSession{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(tm.ttl / time.Second),
		User:         user.Info(),
		ExpiresAt:    now.Add(tm.ttl),
	}, nil
}

func (tm *TokenManager) sign(user *domain.User, typ TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tm.issuer,
		},
		Email: user.Email,
		Type:  typ,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return token, nil
}

// Validate parses an ID token.
func (tm *TokenManager) Validate(tokenString string) (*Claims, error) {
	return tm.parse(tokenString, TokenID)
}

// ValidateRefresh parses a refresh token.
func (tm *TokenManager) ValidateRefresh(tokenString string) (*Claims, error) {
	return tm.parse(tokenString, TokenRefresh)
}

func (tm *TokenManager) parse(tokenString string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
