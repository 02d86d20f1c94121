package domain

import (
	"fmt"
	"time"
)

// CameraPosition identifies where a camera faces.
type CameraPosition string

const (
	CameraFront    CameraPosition = "front"
	CameraBack     CameraPosition = "back"
	CameraExternal CameraPosition = "external"
)

// ParseCameraPosition validates a position string.
func ParseCameraPosition(s string) (CameraPosition, error) {
	switch p := CameraPosition(s); p {
	case CameraFront, CameraBack, CameraExternal:
		return p, nil
	}
	return "", fmt.Errorf("unknown camera position %q (want front, back or external)", s)
}

// CameraDevice identifies a physical (or simulated) camera.
type CameraDevice struct {
	// ID is the stable identifier, e.g. "/dev/video0"
	ID string
	// Name is a display name
	Name string
	// Position is where the camera faces
	Position CameraPosition
	// Source is what the capture backend opens: a device node or a video file
	Source string
	// Capabilities lists what the device supports ("photo", "video", ...)
	Capabilities []string
}

// CaptureOptions are hints passed to a single capture call.
type CaptureOptions struct {
	// Quality is a 1-100 JPEG quality hint
	Quality int
	// PrioritizeSpeed trades quality for latency
	PrioritizeSpeed bool
}

// DefaultCaptureQuality is the quality hint used when none is configured.
const DefaultCaptureQuality = 85

// CapturedFrame is one still image produced by a capture call. It is consumed
// by the encoder and not retained beyond the current request.
type CapturedFrame struct {
	// Seq is the monotonic capture number within the unit
	Seq uint64
	// TraceID correlates the frame with the prediction it feeds
	TraceID string
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Quality is the JPEG quality hint the frame was captured with
	Quality int
	// Data is the encoded image (JPEG)
	Data []byte
}
