package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnonymousEmail identifies the shared user that unauthenticated predictions
// are recorded against.
const AnonymousEmail = "dummy@example.com"

// User is a registered account.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// UserInfo is the public view of a user.
type UserInfo struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Info returns the public view of u.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID.String(), Email: u.Email, DisplayName: u.DisplayName}
}

// AuthSession is a signed-in identity as returned by the auth endpoints.
type AuthSession struct {
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	User         UserInfo  `json:"user"`
	ExpiresAt    time.Time `json:"-"`
}
