package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/payallenka/isl/internal/api/history"
	"github.com/payallenka/isl/internal/api/predict"
	"github.com/payallenka/isl/internal/capture"
	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
	"github.com/payallenka/isl/internal/encoder"
	"github.com/payallenka/isl/internal/permission"
	"github.com/payallenka/isl/internal/pkg/config"
	"github.com/payallenka/isl/internal/session"
)

const defaultVideoDevice = "/dev/video0"

type predictOptions struct {
	Device     string
	Position   string
	Quality    int
	Frames     int
	Source     string
	Input      string
	Email      string
	Password   string
	AssumeYes  bool
	ShowLatest bool
	NoProgress bool
}

func newPredictCommand(app *App) *cobra.Command {
	var opts predictOptions

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Capture from the camera and classify the sign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runPredict(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Device, "device", "d", "", "Camera device ID, e.g. /dev/video0 (default from camera.device)")
	f.StringVarP(&opts.Position, "position", "p", "", "Camera position: front, back or external (default from camera.position)")
	f.IntVarP(&opts.Quality, "quality", "q", 0, "JPEG quality hint 1-100 (default from camera.quality)")
	f.IntVarP(&opts.Frames, "frames", "n", 0, "Frames to capture per prediction (default from camera.frames)")
	f.StringVarP(&opts.Source, "source", "s", "", "Frame source: ffmpeg or synthetic (default from camera.source)")
	f.StringVarP(&opts.Input, "input", "i", "", "Read frames from a video file instead of a device")
	f.StringVar(&opts.Email, "email", "", "Sign in with this email before predicting")
	f.StringVar(&opts.Password, "password", "", "Password for --email")
	f.BoolVarP(&opts.AssumeYes, "yes", "y", false, "Grant camera access without prompting")
	f.BoolVar(&opts.ShowLatest, "show-latest", false, "Print the latest transaction after predicting")
	f.BoolVar(&opts.NoProgress, "no-progress", false, "Disable the progress spinner")

	return cmd
}

// merge fills unset flags from the camera config.
func (o *predictOptions) merge(cfg config.CameraConfig) {
	if o.Device == "" {
		o.Device = cfg.Device
	}
	if o.Position == "" {
		o.Position = cfg.Position
	}
	if o.Quality == 0 {
		o.Quality = cfg.Quality
	}
	if o.Frames == 0 {
		o.Frames = cfg.Frames
	}
	if o.Source == "" {
		o.Source = cfg.Source
	}
	if o.Input == "" {
		o.Input = cfg.Input
	}
	if o.Input != "" {
		o.Position = string(domain.CameraExternal)
	}
}

func (a *App) runPredict(cmd *cobra.Command, opts predictOptions) error {
	ctx := cmd.Context()
	opts.merge(a.cfg.Camera)

	position, err := domain.ParseCameraPosition(opts.Position)
	if err != nil {
		return err
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return fmt.Errorf("--quality must be between 1 and 100, got %d", opts.Quality)
	}
	if opts.Frames < 1 {
		return fmt.Errorf("--frames must be at least 1, got %d", opts.Frames)
	}

	camera, platform, err := a.cameraFor(opts)
	if err != nil {
		return err
	}

	gate := permission.NewGate(platform, a.logger)
	unitOpts := []capture.Option{capture.WithLogger(a.logger), capture.WithPrioritizeSpeed(true)}
	if opts.Device != "" && opts.Input == "" {
		unitOpts = append(unitOpts, capture.WithPreferredDevice(opts.Device))
	}
	unit := capture.NewUnit(camera, gate, unitOpts...)

	predictor := predict.NewClient(
		predict.WithBaseURL(a.cfg.Client.BaseURL),
		predict.WithTimeout(a.cfg.Client.Timeout),
		predict.WithHTTPClient(a.httpClient()),
		predict.WithUserAgent("isl-cli/"+Version),
	)

	machineOpts := []session.Option{
		session.WithLogger(a.logger),
		session.WithCameraPosition(position),
		session.WithQuality(opts.Quality),
		session.WithBurst(opts.Frames),
	}
	idc, err := a.signIn(ctx, opts.Email, opts.Password)
	if err != nil {
		return err
	}
	var credentials ports.CredentialProvider
	if idc != nil {
		credentials = idc
		machineOpts = append(machineOpts, session.WithCredentials(idc))
		fmt.Fprintf(a.ErrOut, "Signed in as %s\n", idc.User().Email)
	}

	machine := session.New(gate, unit, encoder.NewPlaceholder(), predictor, machineOpts...)

	status, err := machine.Mount(ctx)
	if err != nil {
		return err
	}
	if status != domain.PermissionAuthorized {
		return errors.New(permission.Advice(status))
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(a.ErrOut),
		progressbar.OptionSetDescription(domain.SessionState{Phase: domain.PhaseIdle}.Summary()),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(!opts.NoProgress),
		progressbar.OptionClearOnFinish(),
	)
	unsubscribe := machine.Subscribe(func(s domain.SessionState) {
		bar.Describe(s.Summary())
		_ = bar.Add(1)
	})
	state, err := machine.Trigger(ctx)
	unsubscribe()
	_ = bar.Finish()

	if err != nil {
		a.logger.Debug("prediction failed", slog.String("kind", string(state.ErrorKind)))
		return errors.New(state.Summary())
	}

	fmt.Fprintf(a.Out, "Gesture: %s\n", state.Result.Gesture)
	fmt.Fprintf(a.Out, "Confidence: %s\n", domain.FormatConfidence(state.Result.Confidence))

	if opts.ShowLatest {
		return a.printLatest(cmd, credentials)
	}
	return nil
}

// cameraFor picks the frame source and the permission platform that guards it.
func (a *App) cameraFor(opts predictOptions) (ports.Camera, ports.PermissionPlatform, error) {
	switch {
	case opts.Source == "synthetic":
		return capture.NewSyntheticCamera(), &permission.StaticPlatform{Status: domain.PermissionAuthorized}, nil

	case opts.Input != "":
		camera := capture.NewFFmpegCamera(a.cfg.Camera.FFmpeg, []domain.CameraDevice{capture.FileDevice(opts.Input)})
		return camera, &permission.StaticPlatform{Status: domain.PermissionAuthorized}, nil

	case opts.Source == "ffmpeg":
		camera := capture.NewFFmpegCamera(a.cfg.Camera.FFmpeg, configuredDevices(a.cfg.Camera.Devices))
		node := opts.Device
		if node == "" {
			node = defaultVideoDevice
		}
		var platform ports.PermissionPlatform = permission.NewDevicePlatform(node)
		if !opts.AssumeYes {
			platform = permission.NewPromptPlatform(platform, a.In, a.ErrOut)
		}
		return camera, platform, nil

	default:
		return nil, nil, fmt.Errorf("unknown frame source %q (want ffmpeg or synthetic)", opts.Source)
	}
}

func configuredDevices(devices []config.DeviceConfig) []domain.CameraDevice {
	out := make([]domain.CameraDevice, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		source := d.Source
		if source == "" {
			source = d.ID
		}
		out = append(out, domain.CameraDevice{
			ID:           d.ID,
			Name:         name,
			Position:     domain.CameraPosition(d.Position),
			Source:       source,
			Capabilities: []string{"photo"},
		})
	}
	return out
}

func (a *App) historyClient() *history.Client {
	return history.NewClient(
		history.WithBaseURL(a.cfg.Client.BaseURL),
		history.WithTimeout(a.cfg.Client.Timeout),
		history.WithHTTPClient(a.httpClient()),
	)
}
