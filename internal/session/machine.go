// Package session drives one capture-to-prediction attempt at a time and
// publishes every state transition.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/permission"
	"github.com/payallenka/isl/internal/telemetry"
)

// ErrBusy is returned by Trigger while an attempt is in flight.
var ErrBusy = errors.New("session: prediction already in progress")

// Gate is the permission state the machine consults. *permission.Gate implements it.
type Gate interface {
	Mount(ctx context.Context) (domain.PermissionStatus, error)
	Status() domain.PermissionStatus
}

// Capturer takes frames from the selected camera. *capture.Unit implements it.
type Capturer interface {
	SelectDevice(ctx context.Context, position domain.CameraPosition) (domain.CameraDevice, error)
	CaptureBurst(ctx context.Context, n, quality int) ([]*domain.CapturedFrame, error)
}

// Machine is the session state machine. All state lives on the instance.
type Machine struct {
	gate        Gate
	capturer    Capturer
	encoder     ports.FeatureEncoder
	predictor   ports.Predictor
	credentials ports.CredentialProvider

	logger   *slog.Logger
	tracer   trace.Tracer
	position domain.CameraPosition
	quality  int
	burst    int

	// mu guards state and subscribers only; it is never held across I/O.
	mu          sync.Mutex
	state       domain.SessionState
	subscribers map[int]func(domain.SessionState)
	nextSub     int
}

// Option configures a Machine.
type Option func(*Machine)

// WithCredentials attaches a credential provider. Without one every request
// is sent unauthenticated.
func WithCredentials(c ports.CredentialProvider) Option {
	return func(m *Machine) {
		m.credentials = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithTracer sets the tracer used for attempt spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Machine) {
		m.tracer = tracer
	}
}

// WithCameraPosition sets the position Mount selects. Default front.
func WithCameraPosition(p domain.CameraPosition) Option {
	return func(m *Machine) {
		m.position = p
	}
}

// WithQuality sets the capture quality hint. Default 85.
func WithQuality(q int) Option {
	return func(m *Machine) {
		m.quality = q
	}
}

// WithBurst captures n frames per attempt instead of one.
func WithBurst(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.burst = n
		}
	}
}

// New creates a machine in the Idle phase.
func New(gate Gate, capturer Capturer, encoder ports.FeatureEncoder, predictor ports.Predictor, opts ...Option) *Machine {
	m := &Machine{
		gate:        gate,
		capturer:    capturer,
		encoder:     encoder,
		predictor:   predictor,
		logger:      slog.Default(),
		tracer:      telemetry.Tracer(),
		position:    domain.CameraFront,
		quality:     domain.DefaultCaptureQuality,
		burst:       1,
		state:       domain.SessionState{Phase: domain.PhaseIdle},
		subscribers: make(map[int]func(domain.SessionState)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a snapshot of the current state.
func (m *Machine) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to receive every transition, in order, on the
// goroutine running Trigger. The returned func unsubscribes.
func (m *Machine) Subscribe(fn func(domain.SessionState)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Mount runs the permission policy and, once authorized, selects the camera.
func (m *Machine) Mount(ctx context.Context) (domain.PermissionStatus, error) {
	status, err := m.gate.Mount(ctx)
	if err != nil {
		return status, err
	}
	if status != domain.PermissionAuthorized {
		m.logger.Warn("camera not authorized", slog.String("status", status.String()))
		return status, nil
	}
	if _, err := m.capturer.SelectDevice(ctx, m.position); err != nil {
		return status, err
	}
	return status, nil
}

// Trigger runs one attempt: permission, capture, token, encode, predict. It
// returns the final state; on failure the error is the one recorded in it.
// A trigger while capturing or predicting returns ErrBusy and does nothing.
func (m *Machine) Trigger(ctx context.Context) (domain.SessionState, error) {
	attempt, ok := m.begin()
	if !ok {
		return m.State(), ErrBusy
	}

	ctx, span := m.tracer.Start(ctx, "session.attempt",
		trace.WithAttributes(attribute.Int64("session.attempt", int64(attempt))))
	defer span.End()

	state, err := m.run(ctx, attempt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, state.Message)
		span.SetAttributes(attribute.String("error.kind", string(state.ErrorKind)))
	} else {
		span.SetAttributes(
			attribute.String("prediction.gesture", state.Result.Gesture),
			attribute.Float64("prediction.confidence", state.Result.Confidence),
		)
	}
	return state, err
}

// begin moves the machine into Capturing unless an attempt is in flight.
func (m *Machine) begin() (uint64, bool) {
	m.mu.Lock()
	if m.state.Phase.Busy() {
		m.mu.Unlock()
		return 0, false
	}
	attempt := m.state.Attempt + 1
	m.state = domain.SessionState{Phase: domain.PhaseCapturing, Attempt: attempt}
	m.mu.Unlock()

	m.publish()
	return attempt, true
}

func (m *Machine) run(ctx context.Context, attempt uint64) (domain.SessionState, error) {
	logger := m.logger.With(slog.Uint64("attempt", attempt))

	if status := m.gate.Status(); status != domain.PermissionAuthorized {
		return m.fail(logger, attempt, domain.ErrPermissionDenied(permission.Advice(status)))
	}

	logger.Debug("capturing", slog.Int("frames", m.burst))
	frames, err := m.capturer.CaptureBurst(ctx, m.burst, m.quality)
	if err != nil {
		return m.fail(logger, attempt, classify(err, domain.ErrorKindCaptureFailed))
	}

	m.transition(domain.SessionState{Phase: domain.PhasePredicting, Attempt: attempt})

	token := ""
	if m.credentials != nil {
		token, err = m.credentials.CurrentToken(ctx)
		if err != nil {
			// proceed unauthenticated
			logger.Warn("auth token unavailable", slog.String("error", err.Error()))
			token = ""
		}
	}

	tensor, err := m.encoder.Encode(ctx, frames)
	if err != nil {
		if ctxErr := contextError(err); ctxErr != nil {
			return m.fail(logger, attempt, ctxErr)
		}
		return m.fail(logger, attempt, classify(err, domain.ErrorKindEncodingInvariant))
	}
	if err := tensor.Validate(); err != nil {
		return m.fail(logger, attempt, err)
	}

	result, err := m.predictor.Predict(ctx, tensor, token)
	if err != nil {
		return m.fail(logger, attempt, classify(err, domain.ErrorKindNetwork))
	}

	state := domain.SessionState{Phase: domain.PhaseSucceeded, Result: result, Attempt: attempt}
	m.transition(state)
	logger.Info("prediction succeeded",
		slog.String("gesture", result.Gesture),
		slog.String("confidence", domain.FormatConfidence(result.Confidence)))
	return state, nil
}

func (m *Machine) fail(logger *slog.Logger, attempt uint64, err error) (domain.SessionState, error) {
	err = classify(err, domain.ErrorKindNetwork)
	var pe *domain.PipelineError
	errors.As(err, &pe)

	state := domain.SessionState{
		Phase:     domain.PhaseFailed,
		ErrorKind: pe.Kind,
		Message:   pe.Message,
		Attempt:   attempt,
	}
	m.transition(state)
	logger.Warn("prediction failed",
		slog.String("kind", string(pe.Kind)),
		slog.String("error", err.Error()))
	return state, err
}

func (m *Machine) transition(state domain.SessionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.publish()
}

func (m *Machine) publish() {
	m.mu.Lock()
	state := m.state
	fns := make([]func(domain.SessionState), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// contextError classifies a cancelled or expired context. It returns nil for
// any other error.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTimeout("Request aborted").WithCause(err)
	case errors.Is(err, context.Canceled):
		return domain.ErrNetwork("Request cancelled").WithCause(err)
	default:
		return nil
	}
}

// classify makes sure err is a *PipelineError, using fallback for foreign errors.
func classify(err error, fallback domain.ErrorKind) error {
	if _, ok := domain.KindOf(err); ok {
		return err
	}
	return domain.NewPipelineError(fallback, err.Error()).WithCause(err)
}
