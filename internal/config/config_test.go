package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.BackendBaseURL != "http://localhost:8000" {
		t.Fatalf("BackendBaseURL = %q, want default", cfg.BackendBaseURL)
	}
	if cfg.BackendRequestTimeout != 20*time.Second {
		t.Fatalf("BackendRequestTimeout = %v, want 20s", cfg.BackendRequestTimeout)
	}
	if cfg.AudioBackend != "auto" {
		t.Fatalf("AudioBackend = %q, want %q", cfg.AudioBackend, "auto")
	}
	if cfg.CacheDir == "" {
		t.Fatalf("CacheDir should have a default")
	}
}

func TestLoadRejectsUnboundedBackendTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ROLEPLAY_BACKEND_TIMEOUT", "5m")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for out-of-range backend timeout")
	}
}

func TestLoadRejectsUnknownAudioBackend(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AUDIO_BACKEND", "gramophone")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for unknown audio backend")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_CACHE_DIR",
		"ROLEPLAY_BACKEND_URL",
		"ROLEPLAY_BACKEND_TIMEOUT",
		"AUDIO_BACKEND",
		"AUDIO_CAPTURE_SAMPLE_RATE",
		"CATALOG_PATH",
		"AGENT_WS_URL",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
