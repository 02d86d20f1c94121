// Package cli is the terminal front end: it drives a capture session, reads
// the transaction history, translates text to signs and manages accounts.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/payallenka/isl/internal/api/identity"
	"github.com/payallenka/isl/internal/pkg/config"
	"github.com/payallenka/isl/internal/telemetry"
)

// Version is the application version.
const Version = "0.1.0"

// App holds what every subcommand shares. It is filled in by the root
// command's PersistentPreRunE.
type App struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	configPath string
	logLevel   string
	baseURL    string

	cfg            *config.Config
	logger         *slog.Logger
	tracerShutdown func(context.Context) error
}

// NewRootCommand builds the isl command tree writing to the given streams.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	app := &App{In: in, Out: out, ErrOut: errOut}

	root := &cobra.Command{
		Use:           "isl",
		Short:         "Indian Sign Language capture and prediction client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.teardown()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.PersistentFlags().StringVar(&app.configPath, "config", config.DefaultPath, "Path to the config file")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&app.baseURL, "base-url", "", "Backend base URL (default from client.base_url)")

	root.AddCommand(
		newPredictCommand(app),
		newHistoryCommand(app),
		newSignCommand(app),
		newAuthCommand(app),
	)
	return root
}

// Execute runs the CLI against the process streams and exits non-zero on error.
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *App) setup() error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.baseURL != "" {
		cfg.Client.BaseURL = a.baseURL
	}
	a.cfg = cfg

	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	a.logger = slog.New(slog.NewTextHandler(a.ErrOut, &slog.HandlerOptions{Level: level}))

	if cfg.Telemetry.Enabled {
		a.tracerShutdown, err = telemetry.InitTracer("isl-cli", a.logger,
			telemetry.WithWriter(a.ErrOut), telemetry.WithSyncExport())
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
	}
	return nil
}

func (a *App) teardown() {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(context.Background()); err != nil {
			a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}
}

// httpClient traces outbound calls. Deadlines are set per request by the
// API clients.
func (a *App) httpClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

func (a *App) identityClient() *identity.Client {
	httpClient := a.httpClient()
	httpClient.Timeout = a.cfg.Client.Timeout
	return identity.NewClient(
		identity.WithBaseURL(a.cfg.Client.BaseURL),
		identity.WithHTTPClient(httpClient),
		identity.WithLogger(a.logger),
	)
}

// signIn signs in when an email is given on the command line or in the
// config. It returns a nil client for anonymous use.
func (a *App) signIn(ctx context.Context, email, password string) (*identity.Client, error) {
	if email == "" {
		email = a.cfg.Identity.Email
	}
	if password == "" {
		password = a.cfg.Identity.Password
	}
	if email == "" {
		return nil, nil
	}

	idc := a.identityClient()
	if _, err := idc.SignIn(ctx, email, password); err != nil {
		return nil, friendlyError(err)
	}
	return idc, nil
}
