package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talkstream/talkstream/internal/capture"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Gemini.APIKey = "test-key"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid defaults",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "missing api key is allowed at load time",
			mutate:      func(c *Config) { c.Gemini.APIKey = "" },
			expectError: false,
		},
		{
			name:        "invalid default mode",
			mutate:      func(c *Config) { c.Capture.DefaultMode = "desktop" },
			expectError: true,
			errorMsg:    "default_mode",
		},
		{
			name:        "fps too low",
			mutate:      func(c *Config) { c.Capture.FPS = 0 },
			expectError: true,
			errorMsg:    "fps must be between",
		},
		{
			name:        "fps too high",
			mutate:      func(c *Config) { c.Capture.FPS = 60 },
			expectError: true,
			errorMsg:    "fps must be between",
		},
		{
			name:        "zero queue capacity",
			mutate:      func(c *Config) { c.Capture.QueueCapacity = 0 },
			expectError: true,
			errorMsg:    "queue_capacity",
		},
		{
			name:        "bad jpeg quality",
			mutate:      func(c *Config) { c.Capture.JPEGQuality = 0 },
			expectError: true,
			errorMsg:    "jpeg_quality",
		},
		{
			name:        "wrong input sample rate",
			mutate:      func(c *Config) { c.Audio.InputSampleRate = 44100 },
			expectError: true,
			errorMsg:    "input_sample_rate",
		},
		{
			name:        "wrong output sample rate",
			mutate:      func(c *Config) { c.Audio.OutputSampleRate = 16000 },
			expectError: true,
			errorMsg:    "output_sample_rate",
		},
		{
			name:        "chunk duration out of range",
			mutate:      func(c *Config) { c.Audio.ChunkDuration = 2.0 },
			expectError: true,
			errorMsg:    "chunk_duration",
		},
		{
			name:        "negative speaking timeout",
			mutate:      func(c *Config) { c.Audio.SpeakingTimeout = -0.1 },
			expectError: true,
			errorMsg:    "speaking_timeout",
		},
		{
			name:        "zero connect timeout",
			mutate:      func(c *Config) { c.Gemini.ConnectTimeout = 0 },
			expectError: true,
			errorMsg:    "connect_timeout",
		},
		{
			name:        "negative retries",
			mutate:      func(c *Config) { c.Gemini.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries",
		},
		{
			name:        "bad http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port",
		},
		{
			name:        "http disabled skips port check",
			mutate:      func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
			expectError: false,
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be",
		},
		{
			name:        "bad log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Error("expected validation error, got none")
					return
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
capture:
  default_mode: window
  fps: 2
  queue_capacity: 5
  display: 1
  jpeg_quality: 85
audio:
  input_sample_rate: 16000
  output_sample_rate: 24000
  chunk_duration: 0.02
  speaking_timeout: 0.3
gemini:
  api_key: file-key
  model: models/gemini-2.0-flash-exp
  connect_timeout: 10
  max_retries: 2
http:
  enabled: true
  address: 0.0.0.0
  port: 9090
logging:
  level: debug
  format: json
  output: stderr
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Capture.GetDefaultMode() != capture.ModeWindow {
		t.Errorf("expected window mode, got %s", cfg.Capture.DefaultMode)
	}
	if cfg.Capture.FPS != 2 {
		t.Errorf("expected fps 2, got %d", cfg.Capture.FPS)
	}
	if cfg.Gemini.APIKey != "file-key" {
		t.Errorf("expected file credential, got '%s'", cfg.Gemini.APIKey)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got '%s'", cfg.Logging.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	// Only one section present; everything else falls back to defaults.
	content := `
gemini:
  api_key: file-key
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Capture.FPS != 1 {
		t.Errorf("expected default fps 1, got %d", cfg.Capture.FPS)
	}
	if cfg.Audio.InputSampleRate != 16000 {
		t.Errorf("expected default input rate, got %d", cfg.Audio.InputSampleRate)
	}
	if cfg.Capture.GetDefaultMode() != capture.ModeScreen {
		t.Errorf("expected default screen mode, got %s", cfg.Capture.DefaultMode)
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	content := `
gemini:
  api_key: file-key
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv(apiKeyEnv, "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("expected environment credential to win, got '%s'", cfg.Gemini.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("capture: [not a map"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()
	cfg.Audio.ChunkDuration = 0.02
	cfg.Audio.SpeakingTimeout = 0.5
	cfg.Gemini.ConnectTimeout = 10

	if got := cfg.Audio.GetChunkDurationMillis(); got != 20 {
		t.Errorf("expected 20 ms chunk, got %d", got)
	}
	if got := cfg.Audio.GetSpeakingTimeout(); got != 500*time.Millisecond {
		t.Errorf("expected 500ms speaking timeout, got %v", got)
	}
	if got := cfg.Gemini.GetConnectTimeout(); got != 10*time.Second {
		t.Errorf("expected 10s connect timeout, got %v", got)
	}
}
