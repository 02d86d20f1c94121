package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read by Load.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Inference InferenceConfig `koanf:"inference"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Client    ClientConfig    `koanf:"client"`
	Camera    CameraConfig    `koanf:"camera"`
	Identity  IdentityConfig  `koanf:"identity"`
	Gloss     GlossConfig     `koanf:"gloss"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, postgres, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database holds the postgres connection string
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

// InferenceConfig points the backend at the model service.
type InferenceConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	Issuer     string        `koanf:"issuer"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
}

// RateLimitConfig limits requests per client IP. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// ClientConfig configures the CLI's connection to the backend.
type ClientConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type CameraConfig struct {
	Device   string         `koanf:"device"`
	Position string         `koanf:"position"`
	Quality  int            `koanf:"quality"`
	Source   string         `koanf:"source"` // ffmpeg, synthetic
	Input    string         `koanf:"input"`  // video file instead of a device
	Frames   int            `koanf:"frames"`
	FFmpeg   string         `koanf:"ffmpeg"`
	Devices  []DeviceConfig `koanf:"devices"`
}

// DeviceConfig declares a camera explicitly instead of probing /dev/video*.
type DeviceConfig struct {
	ID       string `koanf:"id"`
	Name     string `koanf:"name"`
	Position string `koanf:"position"`
	Source   string `koanf:"source"`
}

type IdentityConfig struct {
	Email    string `koanf:"email"`
	Password string `koanf:"password"`
}

// GlossConfig extends the built-in sign vocabulary.
type GlossConfig struct {
	Vocabulary []string `koanf:"vocabulary"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml from the working directory, then ISL_ environment
// variables, then defaults.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile is Load with an explicit config file path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("ISL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ISL_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets
	cfg.Auth.JWTSecret = substituteEnvVars(cfg.Auth.JWTSecret)
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)
	cfg.Identity.Password = substituteEnvVars(cfg.Identity.Password)

	return &cfg, nil
}

var defaults = map[string]any{
	"server.port":            8000,
	"server.request_timeout": "60s",
	"storage.type":           "sqlite",
	"storage.sqlite.path":    "./data/isl.db",
	"inference.url":          "http://localhost:8001/predict",
	"inference.timeout":      "30s",
	"auth.issuer":            "isl-backend",
	"auth.token_ttl":         "1h",
	"auth.refresh_ttl":       "720h",
	"ratelimit.rps":          5,
	"ratelimit.burst":        10,
	"client.base_url":        "http://localhost:8000",
	"client.timeout":         "7s",
	"camera.position":        "front",
	"camera.quality":         85,
	"camera.source":          "ffmpeg",
	"camera.frames":          1,
	"camera.ffmpeg":          "ffmpeg",
	"log.level":              "info",
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
