package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/payallenka/isl/internal/core/domain"
)

const megabyte = 1024 * 1024

// FFmpegCamera grabs stills with ffmpeg from a v4l2 device or a video file.
type FFmpegCamera struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg".
	Binary string

	// Configured lists devices explicitly. When empty, /dev/video* is probed.
	Configured []domain.CameraDevice

	// Glob is the device pattern probed when nothing is configured.
	Glob string
}

// NewFFmpegCamera returns a camera that probes /dev/video*.
func NewFFmpegCamera(binary string, configured []domain.CameraDevice) *FFmpegCamera {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegCamera{Binary: binary, Configured: configured, Glob: "/dev/video*"}
}

// FileDevice describes a video file as an external camera.
func FileDevice(path string) domain.CameraDevice {
	return domain.CameraDevice{
		ID:           path,
		Name:         filepath.Base(path),
		Position:     domain.CameraExternal,
		Source:       path,
		Capabilities: []string{"photo"},
	}
}

func (c *FFmpegCamera) Devices(ctx context.Context) ([]domain.CameraDevice, error) {
	if len(c.Configured) > 0 {
		return c.Configured, nil
	}

	matches, err := filepath.Glob(c.Glob)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", c.Glob, err)
	}
	sort.Strings(matches)

	devices := make([]domain.CameraDevice, 0, len(matches))
	for i, path := range matches {
		position := domain.CameraExternal
		if i == 0 {
			// laptops expose the built-in webcam first
			position = domain.CameraFront
		}
		devices = append(devices, domain.CameraDevice{
			ID:           path,
			Name:         filepath.Base(path),
			Position:     position,
			Source:       path,
			Capabilities: []string{"photo", "video"},
		})
	}
	return devices, nil
}

func (c *FFmpegCamera) TakePhoto(ctx context.Context, device domain.CameraDevice, opts domain.CaptureOptions) (*domain.CapturedFrame, error) {
	cmd := exec.CommandContext(ctx, c.Binary, captureArgs(device.Source, opts)...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	defer out.Close()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, megabyte), 32*megabyte)
	scanner.Split(SplitJpeg)

	var data []byte
	if scanner.Scan() {
		data = bytes.Clone(scanner.Bytes())
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderrBuf.String()))
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read frame: %w", scanErr)
	}
	if data == nil {
		return nil, fmt.Errorf("ffmpeg produced no frame from %s", device.Source)
	}

	width, height, err := dimensions(data)
	if err != nil {
		return nil, fmt.Errorf("decode frame header: %w", err)
	}

	return &domain.CapturedFrame{
		TraceID:   uuid.NewString(),
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Quality:   opts.Quality,
		Data:      data,
	}, nil
}

// captureArgs builds the ffmpeg command line for a single MJPEG frame on stdout.
func captureArgs(source string, opts domain.CaptureOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(source, "/dev/video") {
		args = append(args, "-f", "v4l2")
		if opts.PrioritizeSpeed {
			args = append(args, "-fflags", "nobuffer")
		}
	}
	args = append(args,
		"-i", source,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(qscale(opts.Quality)),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	return args
}

// qscale maps a 0-100 quality hint onto ffmpeg's 31 (worst) to 2 (best) scale.
func qscale(quality int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return 31 - quality*29/100
}
