package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestPipelineError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *PipelineError
		expected string
	}{
		{
			name:     "without status",
			err:      ErrTimeout("Request aborted"),
			expected: "timeout: Request aborted",
		},
		{
			name:     "with status",
			err:      ErrValidation("bad keypoints").WithStatusCode(400),
			expected: "validation_error (status 400): bad keypoints",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPipelineError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		err      *PipelineError
		expected int
	}{
		{ErrValidation("x"), http.StatusBadRequest},
		{ErrEncodingInvariant("x"), http.StatusBadRequest},
		{ErrPermissionDenied("x"), http.StatusForbidden},
		{ErrAuthTokenUnavailable("x"), http.StatusUnauthorized},
		{ErrTimeout("x"), http.StatusGatewayTimeout},
		{ErrNetwork("x"), http.StatusBadGateway},
		{ErrCaptureFailed("x"), http.StatusInternalServerError},
		{ErrValidation("x").WithStatusCode(422), 422},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("predict: %w", ErrNetwork("Network request failed").WithCause(cause))

	kind, ok := KindOf(wrapped)
	if !ok || kind != ErrorKindNetwork {
		t.Fatalf("KindOf() = %q, %v; want network_error, true", kind, ok)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped error to unwrap to cause")
	}

	if _, ok := KindOf(cause); ok {
		t.Error("KindOf() on a plain error should report ok=false")
	}
}

func TestErrorKind_String(t *testing.T) {
	if got := ErrorKindCameraNotReady.String(); got != "CameraNotReady" {
		t.Errorf("String() = %q", got)
	}
	if got := ErrorKind("other").String(); got != "other" {
		t.Errorf("String() = %q", got)
	}
}

func TestPermissionStatus(t *testing.T) {
	for _, s := range AllPermissionStatuses {
		parsed, err := ParsePermissionStatus(s.String())
		if err != nil {
			t.Fatalf("ParsePermissionStatus(%q): %v", s.String(), err)
		}
		if parsed != s {
			t.Errorf("round trip of %v gave %v", s, parsed)
		}
	}

	if _, err := ParsePermissionStatus("maybe"); err == nil {
		t.Error("expected error for unknown status")
	}

	if PermissionAuthorized.Terminal() || PermissionUndetermined.Terminal() {
		t.Error("authorized and undetermined are not terminal")
	}
	if !PermissionBlocked.Terminal() || !PermissionLimited.Terminal() {
		t.Error("blocked and limited are terminal")
	}
}

func TestPipelineError_ErrorUsesWireKind(t *testing.T) {
	err := ErrCameraNotReady("camera busy")
	if got := err.Kind.String(); got != "CameraNotReady" {
		t.Errorf("String() = %q, want CameraNotReady", got)
	}
	if got := err.Error(); got != "camera_not_ready: camera busy" {
		t.Errorf("Error() = %q", got)
	}
}
