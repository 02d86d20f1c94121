// Package runtime provides the Backend struct and lifecycle management for
// the prediction backend service.
package runtime

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/payallenka/isl/internal/authn"
	"github.com/payallenka/isl/internal/backend"
	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/pkg/config"
	"github.com/payallenka/isl/internal/server"
	"github.com/payallenka/isl/internal/storage"
)

// Backend is the main entry point for running the prediction backend.
// It manages configuration, storage, the API handlers, and HTTP server
// lifecycle. Backend can be embedded in larger applications or run standalone.
type Backend struct {
	// Dependencies (injected via options)
	config  ports.ConfigProvider
	storage ports.StorageProvider
	logger  *slog.Logger

	// Built in Start
	auth      *authn.Service
	inference *backend.InferenceClient
	limiter   *server.RateLimiter
	server    *server.Server

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	done   chan struct{}
}

// New creates a new Backend with the given options.
// Storage defaults to whatever the config file names when no storage option
// is passed.
func New(opts ...Option) (*Backend, error) {
	b := &Backend{
		logger: slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	// Validate required dependencies
	if b.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfigProvider)")
	}

	return b, nil
}

// Start loads configuration, builds the API and starts serving in the
// background.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ctx, b.cancel = context.WithCancel(ctx)

	// Load initial config
	cfg, err := b.config.Load(b.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if b.storage == nil {
		b.logger.Info("no storage provider specified, opening from config", slog.String("type", cfg.Storage.Type))
		b.storage, err = storage.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}

	secret, err := b.jwtSecret(cfg.Auth)
	if err != nil {
		return err
	}
	tokens := authn.NewTokenManager(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, cfg.Auth.RefreshTTL)
	b.auth = authn.NewService(b.storage, tokens, b.logger)
	b.inference = backend.NewInferenceClient(cfg.Inference.URL, cfg.Inference.Timeout)
	b.limiter = server.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	handler, err := backend.NewHandler(b.storage, b.auth, b.inference, b.logger)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	b.server = server.New(server.Options{
		Port:           cfg.Server.Port,
		Logger:         b.logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		Limiter:        b.limiter,
		Authenticator:  b.auth,
	})

	// Register all API handlers
	for _, reg := range handler.Routes() {
		b.server.Router.Method(reg.Method, reg.Path, reg.Handler)
		b.logger.Debug("registered handler",
			slog.String("method", reg.Method),
			slog.String("path", reg.Path))
	}

	// Start HTTP server in background
	b.done = make(chan struct{})
	go func(srv *server.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Start(); err != nil {
			b.logger.Error("server error", slog.String("error", err.Error()))
		}
	}(b.server, b.done)

	// Watch for config changes
	go b.watchConfig()

	b.logger.Info("backend started",
		slog.Int("port", cfg.Server.Port),
		slog.String("inference_url", cfg.Inference.URL),
		slog.Float64("rate_limit_rps", cfg.RateLimit.RPS))

	return nil
}

// Handler returns the HTTP handler serving the API. It is nil before Start.
func (b *Backend) Handler() http.Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.server == nil {
		return nil
	}
	return b.server.Router
}

// Done is closed when the HTTP server stops serving.
func (b *Backend) Done() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.done
}

// Shutdown gracefully stops the backend.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("shutting down backend")

	if b.cancel != nil {
		b.cancel()
	}

	// Stop HTTP server
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			b.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	// Close resources
	if b.storage != nil {
		if err := b.storage.Close(); err != nil {
			b.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if b.config != nil {
		if err := b.config.Close(); err != nil {
			b.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	b.logger.Info("backend shutdown complete")
	return nil
}

// watchConfig watches for config changes and reloads.
func (b *Backend) watchConfig() {
	onChange := func(newCfg *config.Config) {
		b.logger.Info("config changed, reloading")
		b.reload(newCfg)
	}

	if err := b.config.Watch(b.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			b.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload applies the settings that can change while serving: rate limits
// and the model service URL. Port, storage and auth changes need a restart.
func (b *Backend) reload(cfg *config.Config) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.limiter != nil {
		b.limiter.SetLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	if b.inference != nil && cfg.Inference.URL != "" {
		b.inference.SetURL(cfg.Inference.URL)
	}

	b.logger.Info("reload complete",
		slog.String("inference_url", cfg.Inference.URL),
		slog.Float64("rate_limit_rps", cfg.RateLimit.RPS),
		slog.Int("rate_limit_burst", cfg.RateLimit.Burst))
}

func (b *Backend) jwtSecret(cfg config.AuthConfig) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	b.logger.Warn("auth.jwt_secret not set, using a random secret; tokens will not survive a restart")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	return secret, nil
}
