package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/payallenka/isl/internal/core/domain"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type userContextKey struct{}

// AuthMiddleware resolves bearer tokens and stores the user in the request
// context. Missing or invalid tokens leave the request anonymous; handlers
// that need a user check UserFromContext themselves.
func AuthMiddleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				AddLogField(r.Context(), "auth", "invalid token")
				AddError(r.Context(), err)
				next.ServeHTTP(w, r)
				return
			}

			AddLogField(r.Context(), "user_id", user.ID.String())
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(userContextKey{}).(*domain.User); ok {
		return u
	}
	return nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
