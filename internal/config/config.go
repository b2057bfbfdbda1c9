package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the roleplay client daemon.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	BackendBaseURL        string
	BackendRequestTimeout time.Duration

	AudioBackend      string
	CaptureSampleRate int
	CacheDir          string

	CatalogPath string

	AgentWSURL string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8090"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "parley"),
		BackendBaseURL:        envOrDefault("ROLEPLAY_BACKEND_URL", "http://localhost:8000"),
		AudioBackend:          envOrDefault("AUDIO_BACKEND", "auto"),
		CaptureSampleRate:     16000,
		CacheDir:              stringsTrimSpace("APP_CACHE_DIR"),
		CatalogPath:           stringsTrimSpace("CATALOG_PATH"),
		AgentWSURL:            stringsTrimSpace("AGENT_WS_URL"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
		BackendRequestTimeout: 20 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BackendRequestTimeout, err = durationFromEnv("ROLEPLAY_BACKEND_TIMEOUT", cfg.BackendRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureSampleRate, err = intFromEnv("AUDIO_CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate)
	if err != nil {
		return Config{}, err
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "parley")
	}

	if strings.TrimSpace(cfg.BackendBaseURL) == "" {
		return Config{}, fmt.Errorf("ROLEPLAY_BACKEND_URL must not be empty")
	}
	// Every backend call owns a bounded timeout independent of UI cancellation.
	if cfg.BackendRequestTimeout < 5*time.Second || cfg.BackendRequestTimeout > 60*time.Second {
		return Config{}, fmt.Errorf("ROLEPLAY_BACKEND_TIMEOUT must be between 5s and 60s")
	}
	if cfg.CaptureSampleRate <= 0 {
		return Config{}, fmt.Errorf("AUDIO_CAPTURE_SAMPLE_RATE must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AudioBackend)) {
	case "auto", "device", "mock":
		cfg.AudioBackend = strings.ToLower(strings.TrimSpace(cfg.AudioBackend))
	default:
		return Config{}, fmt.Errorf("invalid AUDIO_BACKEND: %q (expected auto|device|mock)", cfg.AudioBackend)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
