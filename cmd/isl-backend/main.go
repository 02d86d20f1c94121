package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/payallenka/isl/internal/pkg/config"
	"github.com/payallenka/isl/internal/telemetry"
	"github.com/payallenka/isl/pkg/backend"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := os.Getenv("ISL_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath
	}

	// Read once up front for the log level and telemetry switch
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("isl-backend", logger, telemetry.WithWriter(os.Stderr))
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	// Storage comes from the storage section of the config file
	b, err := backend.New(
		backend.WithLogger(logger),
		backend.WithFileConfig(configPath),
	)
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		log.Fatalf("Failed to start backend: %v", err)
	}

	logger.Info("Backend started successfully",
		slog.String("config", configPath),
		slog.String("storage", cfg.Storage.Type))

	// Wait for shutdown signal or server exit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping backend...")
	case <-b.Done():
		logger.Error("server stopped unexpectedly")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := b.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Backend shutdown complete")
}
