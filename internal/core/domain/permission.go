package domain

import "fmt"

// PermissionStatus is the camera-authorization state reported by the platform.
// The set is closed: every switch over it must handle all six values.
type PermissionStatus int

const (
	PermissionUndetermined PermissionStatus = iota
	PermissionAuthorized
	PermissionDenied
	PermissionBlocked
	PermissionRestricted
	PermissionLimited
)

// AllPermissionStatuses lists every status in declaration order.
var AllPermissionStatuses = []PermissionStatus{
	PermissionUndetermined,
	PermissionAuthorized,
	PermissionDenied,
	PermissionBlocked,
	PermissionRestricted,
	PermissionLimited,
}

// String returns the platform spelling of the status.
func (s PermissionStatus) String() string {
	switch s {
	case PermissionUndetermined:
		return "not-determined"
	case PermissionAuthorized:
		return "authorized"
	case PermissionDenied:
		return "denied"
	case PermissionBlocked:
		return "blocked"
	case PermissionRestricted:
		return "restricted"
	case PermissionLimited:
		return "limited"
	default:
		panic(fmt.Sprintf("domain: unknown permission status %d", int(s)))
	}
}

// ParsePermissionStatus maps a platform string to a status. "granted" is
// accepted as an alias of "authorized".
func ParsePermissionStatus(s string) (PermissionStatus, error) {
	switch s {
	case "not-determined", "undetermined":
		return PermissionUndetermined, nil
	case "authorized", "granted":
		return PermissionAuthorized, nil
	case "denied":
		return PermissionDenied, nil
	case "blocked":
		return PermissionBlocked, nil
	case "restricted":
		return PermissionRestricted, nil
	case "limited":
		return PermissionLimited, nil
	}
	return PermissionUndetermined, fmt.Errorf("unknown camera permission state: %q", s)
}

// Terminal reports whether the status has no retry path from inside the app.
// Denied and Blocked send the user to system settings; Restricted and Limited
// are informational.
func (s PermissionStatus) Terminal() bool {
	switch s {
	case PermissionUndetermined, PermissionAuthorized:
		return false
	case PermissionDenied, PermissionBlocked, PermissionRestricted, PermissionLimited:
		return true
	default:
		panic(fmt.Sprintf("domain: unknown permission status %d", int(s)))
	}
}
