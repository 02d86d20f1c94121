package permission

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
)

// DevicePlatform derives the status from access to a video device node.
// There is no OS prompt on Linux: a request re-checks, and a device that is
// still unreadable afterwards is reported as Blocked.
type DevicePlatform struct {
	Path string

	mu        sync.Mutex
	requested bool
}

// NewDevicePlatform returns a platform for the device node at path.
func NewDevicePlatform(path string) *DevicePlatform {
	return &DevicePlatform{Path: path}
}

func (p *DevicePlatform) CheckStatus(ctx context.Context) (domain.PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.PermissionUndetermined, err
	}

	f, err := os.OpenFile(p.Path, os.O_RDONLY, 0)
	if err == nil {
		f.Close()
		return domain.PermissionAuthorized, nil
	}

	switch {
	case errors.Is(err, fs.ErrPermission):
		p.mu.Lock()
		requested := p.requested
		p.mu.Unlock()
		if requested {
			return domain.PermissionBlocked, nil
		}
		return domain.PermissionDenied, nil
	case errors.Is(err, fs.ErrNotExist):
		return domain.PermissionRestricted, nil
	default:
		return domain.PermissionUndetermined, fmt.Errorf("open %s: %w", p.Path, err)
	}
}

func (p *DevicePlatform) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	p.mu.Lock()
	p.requested = true
	p.mu.Unlock()
	return p.CheckStatus(ctx)
}

// PromptPlatform asks the terminal user before delegating to the wrapped
// platform. The question is asked at most once.
type PromptPlatform struct {
	inner ports.PermissionPlatform
	in    *bufio.Reader
	out   io.Writer

	mu       sync.Mutex
	answered bool
	allowed  bool
}

// NewPromptPlatform wraps inner with a y/N prompt read from in.
func NewPromptPlatform(inner ports.PermissionPlatform, in io.Reader, out io.Writer) *PromptPlatform {
	return &PromptPlatform{inner: inner, in: bufio.NewReader(in), out: out}
}

func (p *PromptPlatform) CheckStatus(ctx context.Context) (domain.PermissionStatus, error) {
	p.mu.Lock()
	answered, allowed := p.answered, p.allowed
	p.mu.Unlock()

	if answered && !allowed {
		return domain.PermissionDenied, nil
	}

	status, err := p.inner.CheckStatus(ctx)
	if err != nil || answered || status != domain.PermissionAuthorized {
		return status, err
	}
	return domain.PermissionUndetermined, nil
}

func (p *PromptPlatform) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	p.mu.Lock()
	if p.answered {
		allowed := p.allowed
		p.mu.Unlock()
		if !allowed {
			return domain.PermissionBlocked, nil
		}
		return p.inner.CheckStatus(ctx)
	}
	p.mu.Unlock()

	fmt.Fprint(p.out, "Allow access to the camera? [y/N] ")
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.PermissionUndetermined, fmt.Errorf("read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	allowed := answer == "y" || answer == "yes"

	p.mu.Lock()
	p.answered = true
	p.allowed = allowed
	p.mu.Unlock()

	if !allowed {
		return domain.PermissionDenied, nil
	}
	return p.inner.RequestPermission(ctx)
}

// StaticPlatform always reports Status. Used for video-file input and tests.
type StaticPlatform struct {
	Status domain.PermissionStatus

	mu       sync.Mutex
	requests int
}

func (p *StaticPlatform) CheckStatus(ctx context.Context) (domain.PermissionStatus, error) {
	return p.Status, nil
}

func (p *StaticPlatform) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	p.mu.Lock()
	p.requests++
	p.mu.Unlock()
	return p.Status, nil
}

// Requests returns how many times RequestPermission was called.
func (p *StaticPlatform) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}
