package domain

import "fmt"

// Auth error codes, as sent in the "code" field of auth error responses.
const (
	AuthCodeUserNotFound       = "auth/user-not-found"
	AuthCodeWrongPassword      = "auth/wrong-password"
	AuthCodeInvalidEmail       = "auth/invalid-email"
	AuthCodeWeakPassword       = "auth/weak-password"
	AuthCodeEmailInUse         = "auth/email-already-in-use"
	AuthCodeTooManyRequests    = "auth/too-many-requests"
	AuthCodeNetworkFailed      = "auth/network-request-failed"
	AuthCodeUserDisabled       = "auth/user-disabled"
	AuthCodeInvalidCredential  = "auth/invalid-credential"
	AuthCodeInvalidToken       = "auth/invalid-token"
	authFallbackFriendlyString = "An error occurred. Please try again."
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// AuthError is returned by sign-up, sign-in and token refresh.
type AuthError struct {
	Code       string `json:"code"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates an auth error carrying the friendly message for code.
func NewAuthError(code string, status int) *AuthError {
	return &AuthError{Code: code, Message: FriendlyAuthMessage(code), StatusCode: status}
}

// FriendlyAuthMessage maps an auth error code to the text shown to users.
func FriendlyAuthMessage(code string) string {
	switch code {
	case AuthCodeUserNotFound:
		return "No account found with this email address. Please check your email or create a new account."
	case AuthCodeWrongPassword:
		return "Incorrect password. Please try again."
	case AuthCodeInvalidEmail:
		return "Please enter a valid email address."
	case AuthCodeWeakPassword:
		return "Password should be at least 6 characters long."
	case AuthCodeEmailInUse:
		return "An account with this email already exists. Please sign in instead."
	case AuthCodeTooManyRequests:
		return "Too many failed attempts. Please try again later."
	case AuthCodeNetworkFailed:
		return "Network error. Please check your internet connection."
	case AuthCodeUserDisabled:
		return "This account has been disabled. Please contact support."
	case AuthCodeInvalidCredential:
		return "Invalid email or password. Please try again."
	default:
		return authFallbackFriendlyString
	}
}
