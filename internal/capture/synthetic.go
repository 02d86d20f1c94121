package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/payallenka/isl/internal/core/domain"
)

// SyntheticCamera renders gradient frames. It needs no hardware.
type SyntheticCamera struct {
	Width  int
	Height int

	frames atomic.Uint64
}

// NewSyntheticCamera returns a 320x240 synthetic front camera.
func NewSyntheticCamera() *SyntheticCamera {
	return &SyntheticCamera{Width: 320, Height: 240}
}

func (c *SyntheticCamera) Devices(ctx context.Context) ([]domain.CameraDevice, error) {
	return []domain.CameraDevice{{
		ID:           "synthetic0",
		Name:         "Synthetic camera",
		Position:     domain.CameraFront,
		Source:       "synthetic",
		Capabilities: []string{"photo"},
	}}, nil
}

func (c *SyntheticCamera) TakePhoto(ctx context.Context, device domain.CameraDevice, opts domain.CaptureOptions) (*domain.CapturedFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := c.frames.Add(1)
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + int(n)*8) % 256),
				G: uint8(y % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode synthetic frame: %w", err)
	}

	return &domain.CapturedFrame{
		TraceID:   uuid.NewString(),
		Timestamp: time.Now(),
		Width:     c.Width,
		Height:    c.Height,
		Quality:   opts.Quality,
		Data:      buf.Bytes(),
	}, nil
}
