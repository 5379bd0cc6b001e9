package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talkstream/talkstream/internal/capture"
)

// apiKeyEnv overrides the configured credential when set
const apiKeyEnv = "GEMINI_API_KEY"

// Config represents the complete service configuration
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Audio   AudioConfig   `yaml:"audio"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig contains frame capture parameters
type CaptureConfig struct {
	DefaultMode   string `yaml:"default_mode"`
	FPS           int    `yaml:"fps"`
	QueueCapacity int    `yaml:"queue_capacity"`
	Display       int    `yaml:"display"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
}

// AudioConfig contains audio streaming parameters
type AudioConfig struct {
	InputSampleRate  int     `yaml:"input_sample_rate"`
	OutputSampleRate int     `yaml:"output_sample_rate"`
	ChunkDuration    float64 `yaml:"chunk_duration"`   // seconds
	SpeakingTimeout  float64 `yaml:"speaking_timeout"` // seconds
}

// GeminiConfig contains Live API connection parameters
type GeminiConfig struct {
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	SystemInstruction string `yaml:"system_instruction"`
	ConnectTimeout    int    `yaml:"connect_timeout"` // seconds
	MaxRetries        int    `yaml:"max_retries"`
}

// HTTPConfig contains control API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. The GEMINI_API_KEY
// environment variable overrides the file credential. A missing credential
// is not a load error; it fails later at session start.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv(apiKeyEnv); key != "" {
		config.Gemini.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns the configuration used when a section is omitted
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			DefaultMode:   "screen",
			FPS:           1,
			QueueCapacity: 3,
			Display:       0,
			JPEGQuality:   70,
		},
		Audio: AudioConfig{
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
			ChunkDuration:    0.04,
			SpeakingTimeout:  0.5,
		},
		Gemini: GeminiConfig{
			ConnectTimeout: 30,
			MaxRetries:     3,
		},
		HTTP: HTTPConfig{
			Port:    8089,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Gemini.Validate(); err != nil {
		return fmt.Errorf("gemini config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if _, err := capture.ParseMode(c.DefaultMode); err != nil {
		return fmt.Errorf("default_mode: %w", err)
	}

	if c.FPS < 1 || c.FPS > 30 {
		return fmt.Errorf("fps must be between 1 and 30, got %d", c.FPS)
	}

	if c.QueueCapacity < 1 || c.QueueCapacity > 64 {
		return fmt.Errorf("queue_capacity must be between 1 and 64, got %d", c.QueueCapacity)
	}

	if c.Display < 0 {
		return fmt.Errorf("display cannot be negative, got %d", c.Display)
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.InputSampleRate != 16000 {
		return fmt.Errorf("input_sample_rate must be 16000 Hz for the Live API, got %d", a.InputSampleRate)
	}

	if a.OutputSampleRate != 24000 {
		return fmt.Errorf("output_sample_rate must be 24000 Hz for the Live API, got %d", a.OutputSampleRate)
	}

	if a.ChunkDuration < 0.01 || a.ChunkDuration > 0.5 {
		return fmt.Errorf("chunk_duration must be between 0.01 and 0.5 seconds, got %f", a.ChunkDuration)
	}

	if a.SpeakingTimeout <= 0 {
		return fmt.Errorf("speaking_timeout must be positive, got %f", a.SpeakingTimeout)
	}

	return nil
}

// Validate validates Live API configuration. The API key may be empty here;
// the controller rejects session starts without one.
func (g *GeminiConfig) Validate() error {
	if g.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", g.ConnectTimeout)
	}

	if g.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", g.MaxRetries)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetDefaultMode returns the parsed default capture mode
func (c *CaptureConfig) GetDefaultMode() capture.Mode {
	mode, _ := capture.ParseMode(c.DefaultMode)
	return mode
}

// GetChunkDurationMillis returns the outbound chunk duration in milliseconds
func (a *AudioConfig) GetChunkDurationMillis() int {
	return int(a.ChunkDuration * 1000)
}

// GetSpeakingTimeout returns the speaking timeout as a time.Duration
func (a *AudioConfig) GetSpeakingTimeout() time.Duration {
	return time.Duration(a.SpeakingTimeout * float64(time.Second))
}

// GetConnectTimeout returns the connect timeout as a time.Duration
func (g *GeminiConfig) GetConnectTimeout() time.Duration {
	return time.Duration(g.ConnectTimeout) * time.Second
}
