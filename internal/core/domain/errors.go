// Package domain provides the canonical types and error taxonomy shared by the
// capture-to-prediction pipeline, the clients and the backend.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a pipeline failure.
type ErrorKind string

const (
	// ErrorKindPermissionDenied indicates camera access is not authorized.
	ErrorKindPermissionDenied ErrorKind = "permission_denied"

	// ErrorKindCameraNotReady indicates a capture was attempted without a
	// selected device or without authorization. It is a programming error,
	// never retried.
	ErrorKindCameraNotReady ErrorKind = "camera_not_ready"

	// ErrorKindCaptureFailed indicates the camera platform call failed.
	ErrorKindCaptureFailed ErrorKind = "capture_failed"

	// ErrorKindEncodingInvariant indicates a keypoint tensor with the wrong shape.
	ErrorKindEncodingInvariant ErrorKind = "encoding_invariant_violation"

	// ErrorKindValidation indicates the server rejected the request.
	ErrorKindValidation ErrorKind = "validation_error"

	// ErrorKindTimeout indicates the client-side deadline expired.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindNetwork indicates a transport failure or an unreadable response.
	ErrorKindNetwork ErrorKind = "network_error"

	// ErrorKindAuthTokenUnavailable indicates no bearer token could be
	// obtained. Non-fatal: the request proceeds unauthenticated.
	ErrorKindAuthTokenUnavailable ErrorKind = "auth_token_unavailable"
)

// String returns the display name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindPermissionDenied:
		return "PermissionDenied"
	case ErrorKindCameraNotReady:
		return "CameraNotReady"
	case ErrorKindCaptureFailed:
		return "CaptureFailed"
	case ErrorKindEncodingInvariant:
		return "EncodingInvariantViolation"
	case ErrorKindValidation:
		return "ValidationError"
	case ErrorKindTimeout:
		return "Timeout"
	case ErrorKindNetwork:
		return "NetworkError"
	case ErrorKindAuthTokenUnavailable:
		return "AuthTokenUnavailable"
	default:
		return string(k)
	}
}

// PipelineError is the canonical error returned by every stage of the
// capture-to-prediction pipeline.
type PipelineError struct {
	// Kind is the category of error
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable message shown to the user
	Message string `json:"message"`

	// StatusCode is the HTTP status that produced the error, if any
	StatusCode int `json:"-"`

	// Err is the underlying cause
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", string(e.Kind), e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", string(e.Kind), e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code a server should answer with for this error.
func (e *PipelineError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Kind {
	case ErrorKindValidation, ErrorKindEncodingInvariant:
		return http.StatusBadRequest
	case ErrorKindPermissionDenied:
		return http.StatusForbidden
	case ErrorKindAuthTokenUnavailable:
		return http.StatusUnauthorized
	case ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case ErrorKindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewPipelineError creates a new pipeline error.
func NewPipelineError(kind ErrorKind, message string) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Message: message,
	}
}

// WithStatusCode records the HTTP status that produced the error.
func (e *PipelineError) WithStatusCode(code int) *PipelineError {
	e.StatusCode = code
	return e
}

// WithCause attaches the underlying error.
func (e *PipelineError) WithCause(err error) *PipelineError {
	e.Err = err
	return e
}

// KindOf extracts the kind of a pipeline error. ok is false when err is not
// (and does not wrap) a *PipelineError.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// Convenience constructors

// ErrPermissionDenied creates a permission error.
func ErrPermissionDenied(message string) *PipelineError {
	return NewPipelineError(ErrorKindPermissionDenied, message)
}

// ErrCameraNotReady creates a camera-not-ready error.
func ErrCameraNotReady(message string) *PipelineError {
	return NewPipelineError(ErrorKindCameraNotReady, message)
}

// ErrCaptureFailed creates a capture error.
func ErrCaptureFailed(message string) *PipelineError {
	return NewPipelineError(ErrorKindCaptureFailed, message)
}

// ErrEncodingInvariant creates a tensor shape error.
func ErrEncodingInvariant(message string) *PipelineError {
	return NewPipelineError(ErrorKindEncodingInvariant, message)
}

// ErrValidation creates a server-side validation error.
func ErrValidation(message string) *PipelineError {
	return NewPipelineError(ErrorKindValidation, message)
}

// ErrTimeout creates a deadline error.
func ErrTimeout(message string) *PipelineError {
	return NewPipelineError(ErrorKindTimeout, message)
}

// ErrNetwork creates a transport error.
func ErrNetwork(message string) *PipelineError {
	return NewPipelineError(ErrorKindNetwork, message)
}

// ErrAuthTokenUnavailable creates a token retrieval error.
func ErrAuthTokenUnavailable(message string) *PipelineError {
	return NewPipelineError(ErrorKindAuthTokenUnavailable, message)
}

// Storage sentinels.
var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)
