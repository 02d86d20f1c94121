// Package capture selects a camera and takes still frames from it, but only
// while camera permission is authorized.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
)

// StatusSource reports the current camera permission. *permission.Gate
// satisfies it.
type StatusSource interface {
	Status() domain.PermissionStatus
}

// Unit wraps a camera backend with device selection and the capture guard.
type Unit struct {
	camera      ports.Camera
	permissions StatusSource
	logger      *slog.Logger
	preferredID string
	speed       bool

	devMu  sync.RWMutex
	device *domain.CameraDevice

	// held for the duration of one capture
	busy sync.Mutex
	seq  atomic.Uint64
}

// Option configures a Unit.
type Option func(*Unit)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Unit) {
		u.logger = logger
	}
}

// WithPreferredDevice makes SelectDevice pick the device with this ID when present.
func WithPreferredDevice(id string) Option {
	return func(u *Unit) {
		u.preferredID = id
	}
}

// WithPrioritizeSpeed asks the camera to favour latency over quality.
func WithPrioritizeSpeed(speed bool) Option {
	return func(u *Unit) {
		u.speed = speed
	}
}

// NewUnit creates a capture unit over camera, gated by permissions.
func NewUnit(camera ports.Camera, permissions StatusSource, opts ...Option) *Unit {
	u := &Unit{
		camera:      camera,
		permissions: permissions,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// SelectDevice picks the camera for this unit. Selection happens once; later
// calls return the device already chosen.
func (u *Unit) SelectDevice(ctx context.Context, position domain.CameraPosition) (domain.CameraDevice, error) {
	u.devMu.Lock()
	defer u.devMu.Unlock()

	if u.device != nil {
		return *u.device, nil
	}

	devices, err := u.camera.Devices(ctx)
	if err != nil {
		return domain.CameraDevice{}, domain.ErrCameraNotReady("enumerate cameras failed").WithCause(err)
	}

	var chosen *domain.CameraDevice
	for i := range devices {
		d := devices[i]
		if u.preferredID != "" && d.ID == u.preferredID {
			chosen = &d
			break
		}
		if chosen == nil && u.preferredID == "" && d.Position == position {
			chosen = &d
		}
	}
	if chosen == nil {
		if u.preferredID != "" {
			return domain.CameraDevice{}, domain.ErrCameraNotReady(fmt.Sprintf("camera %q not found", u.preferredID))
		}
		return domain.CameraDevice{}, domain.ErrCameraNotReady(fmt.Sprintf("no %s camera found", position))
	}

	u.device = chosen
	u.logger.Info("camera selected",
		slog.String("id", chosen.ID),
		slog.String("position", string(chosen.Position)),
		slog.String("source", chosen.Source))
	return *chosen, nil
}

// Device returns the selected device, if any.
func (u *Unit) Device() (domain.CameraDevice, bool) {
	u.devMu.RLock()
	defer u.devMu.RUnlock()
	if u.device == nil {
		return domain.CameraDevice{}, false
	}
	return *u.device, true
}

// Capture takes one frame. The camera is not touched unless a device is
// selected and permission is Authorized.
func (u *Unit) Capture(ctx context.Context, quality int) (*domain.CapturedFrame, error) {
	device, ok := u.Device()
	if !ok {
		return nil, domain.ErrCameraNotReady("no camera selected")
	}
	if status := u.permissions.Status(); status != domain.PermissionAuthorized {
		return nil, domain.ErrCameraNotReady(fmt.Sprintf("camera permission is %s", status))
	}

	if !u.busy.TryLock() {
		return nil, domain.ErrCameraNotReady("camera busy")
	}
	defer u.busy.Unlock()

	if quality <= 0 || quality > 100 {
		quality = domain.DefaultCaptureQuality
	}

	frame, err := u.camera.TakePhoto(ctx, device, domain.CaptureOptions{
		Quality:         quality,
		PrioritizeSpeed: u.speed,
	})
	if err != nil {
		return nil, domain.ErrCaptureFailed("Failed to capture photo").WithCause(err)
	}

	frame.Seq = u.seq.Add(1)
	if frame.Quality == 0 {
		frame.Quality = quality
	}

	u.logger.Debug("frame captured",
		slog.Uint64("seq", frame.Seq),
		slog.String("trace_id", frame.TraceID),
		slog.Int("bytes", len(frame.Data)))
	return frame, nil
}

// CaptureBurst takes n frames back to back. The first failure aborts the burst.
func (u *Unit) CaptureBurst(ctx context.Context, n, quality int) ([]*domain.CapturedFrame, error) {
	if n < 1 {
		n = 1
	}
	frames := make([]*domain.CapturedFrame, 0, n)
	for i := 0; i < n; i++ {
		frame, err := u.Capture(ctx, quality)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
