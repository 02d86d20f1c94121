// Package permission tracks camera authorization and decides when the user
// may be asked for it.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
)

// Gate owns the PermissionStatus for one session. The zero value is not usable;
// construct with NewGate.
type Gate struct {
	platform ports.PermissionPlatform
	logger   *slog.Logger

	mu        sync.Mutex
	status    domain.PermissionStatus
	requested bool
}

// NewGate creates a gate over platform. Status starts Undetermined.
func NewGate(platform ports.PermissionPlatform, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		platform: platform,
		logger:   logger,
		status:   domain.PermissionUndetermined,
	}
}

// Status returns the last known status.
func (g *Gate) Status() domain.PermissionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Requested reports whether the gate has already prompted during its lifetime.
func (g *Gate) Requested() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requested
}

// Mount runs the cold-start policy: check the status and, unless it is
// Authorized or has no retry path, request permission once. Later calls
// only re-check.
func (g *Gate) Mount(ctx context.Context) (domain.PermissionStatus, error) {
	status, err := g.platform.CheckStatus(ctx)
	if err != nil {
		return g.Status(), fmt.Errorf("check camera permission: %w", err)
	}

	g.mu.Lock()
	g.status = status
	shouldRequest := !g.requested && autoRequest(status)
	if shouldRequest {
		g.requested = true
	}
	g.mu.Unlock()

	g.logger.Debug("camera permission checked", slog.String("status", status.String()))

	if !shouldRequest {
		return status, nil
	}
	return g.request(ctx)
}

// Request is the user-initiated retry. It is refused for statuses that only
// the system settings can change.
func (g *Gate) Request(ctx context.Context) (domain.PermissionStatus, error) {
	g.mu.Lock()
	status := g.status
	if status == domain.PermissionAuthorized {
		g.mu.Unlock()
		return status, nil
	}
	if !userRequestable(status) {
		g.mu.Unlock()
		return status, domain.ErrPermissionDenied(Advice(status))
	}
	g.requested = true
	g.mu.Unlock()

	return g.request(ctx)
}

func (g *Gate) request(ctx context.Context) (domain.PermissionStatus, error) {
	status, err := g.platform.RequestPermission(ctx)
	if err != nil {
		return g.Status(), fmt.Errorf("request camera permission: %w", err)
	}

	g.mu.Lock()
	g.status = status
	g.mu.Unlock()

	g.logger.Info("camera permission requested", slog.String("status", status.String()))
	return status, nil
}

func autoRequest(s domain.PermissionStatus) bool {
	switch s {
	case domain.PermissionUndetermined, domain.PermissionDenied:
		return true
	case domain.PermissionAuthorized, domain.PermissionBlocked, domain.PermissionRestricted, domain.PermissionLimited:
		return false
	default:
		panic(fmt.Sprintf("permission: unknown status %d", int(s)))
	}
}

func userRequestable(s domain.PermissionStatus) bool {
	switch s {
	case domain.PermissionUndetermined, domain.PermissionDenied, domain.PermissionAuthorized:
		return true
	case domain.PermissionBlocked, domain.PermissionRestricted, domain.PermissionLimited:
		return false
	default:
		panic(fmt.Sprintf("permission: unknown status %d", int(s)))
	}
}

// Advice returns the text shown to the user for status. Authorized has none.
func Advice(s domain.PermissionStatus) string {
	switch s {
	case domain.PermissionAuthorized:
		return ""
	case domain.PermissionUndetermined:
		return "Requesting camera permission..."
	case domain.PermissionDenied, domain.PermissionBlocked:
		return "Camera permission denied or blocked. Open your system settings to allow camera access."
	case domain.PermissionRestricted:
		return "Camera access is restricted by parental controls or system policy."
	case domain.PermissionLimited:
		return "Camera access is limited."
	default:
		panic(fmt.Sprintf("permission: unknown status %d", int(s)))
	}
}
