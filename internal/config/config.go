package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Storage       StorageConfig       `yaml:"storage"`
	Transcoder    TranscoderConfig    `yaml:"transcoder"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	CORS          CORSConfig          `yaml:"cors"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	Address         string `yaml:"address"`
	PublicBaseURL   string `yaml:"public_base_url"`  // overrides scheme://host of returned URLs
	ReadTimeout     int    `yaml:"read_timeout"`     // seconds, 0 disables
	WriteTimeout    int    `yaml:"write_timeout"`    // seconds, 0 disables
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// StorageConfig contains the on-disk upload layout
type StorageConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"` // 0 means unlimited
}

// TranscoderConfig contains the ffmpeg invocation parameters
type TranscoderConfig struct {
	FFmpegPath   string `yaml:"ffmpeg_path"`
	Format       string `yaml:"format"`
	AudioBitrate string `yaml:"audio_bitrate"` // e.g. "128k", empty keeps the encoder default
	Timeout      int    `yaml:"timeout"`       // seconds, 0 disables
}

// TranscriptionConfig contains the remote provider configuration
type TranscriptionConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  int    `yaml:"timeout"` // seconds, 0 disables
}

// CORSConfig contains cross-origin settings for the HTTP API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            5000,
			Address:         "0.0.0.0",
			ReadTimeout:     0,
			WriteTimeout:    0,
			ShutdownTimeout: 10,
		},
		Storage: StorageConfig{
			UploadDir:      "uploads",
			MaxUploadBytes: 512 << 20,
		},
		Transcoder: TranscoderConfig{
			FFmpegPath: "ffmpeg",
			Format:     "mp3",
		},
		Transcription: TranscriptionConfig{
			Endpoint: "https://api.assemblyai.com",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(config)
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	return finish(Default())
}

func finish(config *Config) (*Config, error) {
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides file values with environment variables. The lookup
// function is injected so tests do not depend on the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimPrefix(v, ":"))
		if err != nil {
			return fmt.Errorf("PORT must be numeric, got %q", v)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("ASSEMBLYAI_API_KEY"); ok && v != "" {
		c.Transcription.APIKey = v
	}
	if v, ok := lookup("ASSEMBLYAI_ENDPOINT"); ok && v != "" {
		c.Transcription.Endpoint = v
	}
	if v, ok := lookup("UPLOAD_DIR"); ok && v != "" {
		c.Storage.UploadDir = v
	}
	if v, ok := lookup("PUBLIC_BASE_URL"); ok && v != "" {
		c.HTTP.PublicBaseURL = v
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Transcoder.Validate(); err != nil {
		return fmt.Errorf("transcoder config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.ReadTimeout < 0 || h.WriteTimeout < 0 {
		return fmt.Errorf("read_timeout and write_timeout cannot be negative")
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	if h.PublicBaseURL != "" {
		u, err := url.Parse(h.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public_base_url must be an absolute URL, got '%s'", h.PublicBaseURL)
		}
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.UploadDir == "" {
		return fmt.Errorf("upload_dir cannot be empty")
	}

	if s.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes cannot be negative, got %d", s.MaxUploadBytes)
	}

	return nil
}

// Validate validates transcoder configuration
func (t *TranscoderConfig) Validate() error {
	if t.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if t.Format != "mp3" {
		return fmt.Errorf("format must be 'mp3', got '%s'", t.Format)
	}

	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", t.Timeout)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if _, err := url.ParseRequestURI(t.Endpoint); err != nil {
		return fmt.Errorf("endpoint must be a valid URL: %w", err)
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set ASSEMBLYAI_API_KEY)")
	}

	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", t.Timeout)
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

// Addr returns the listen address of the HTTP server
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetShutdownTimeoutDuration returns the shutdown grace period as a time.Duration
func (h *HTTPConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetTimeoutDuration returns the transcoding timeout as a time.Duration
func (t *TranscoderConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the provider request timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
