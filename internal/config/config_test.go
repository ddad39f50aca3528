package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Default()
	cfg.Transcription.APIKey = "test-key"
	return *cfg
}

// clearEnv blanks every variable ApplyEnv looks at
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "ASSEMBLYAI_API_KEY", "ASSEMBLYAI_ENDPOINT", "UPLOAD_DIR", "PUBLIC_BASE_URL"} {
		t.Setenv(key, "")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "relative public base url",
			mutate:      func(c *Config) { c.HTTP.PublicBaseURL = "/files" },
			expectError: true,
			errorMsg:    "public_base_url must be an absolute URL",
		},
		{
			name:        "empty upload dir",
			mutate:      func(c *Config) { c.Storage.UploadDir = "" },
			expectError: true,
			errorMsg:    "upload_dir cannot be empty",
		},
		{
			name:        "unsupported target format",
			mutate:      func(c *Config) { c.Transcoder.Format = "ogg" },
			expectError: true,
			errorMsg:    "format must be 'mp3'",
		},
		{
			name:        "missing api key",
			mutate:      func(c *Config) { c.Transcription.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  port: 8080
  address: "127.0.0.1"
storage:
  upload_dir: "data/uploads"
transcoder:
  ffmpeg_path: "/usr/bin/ffmpeg"
  format: "mp3"
  audio_bitrate: "128k"
transcription:
  endpoint: "https://api.assemblyai.com"
  api_key: "test-key"
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing api key",
			configYAML: `
http:
  port: 8080
`,
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if config.HTTP.Port != 8080 {
				t.Errorf("Expected port 8080, got %d", config.HTTP.Port)
			}
			if config.Storage.UploadDir != "data/uploads" {
				t.Errorf("Expected upload dir data/uploads, got %s", config.Storage.UploadDir)
			}
			if config.HTTP.ShutdownTimeout != 10 {
				t.Errorf("Expected default shutdown timeout to survive partial file, got %d", config.HTTP.ShutdownTimeout)
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSEMBLYAI_API_KEY", "env-key")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults, got error: %v", err)
	}
	if cfg.HTTP.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", cfg.HTTP.Port)
	}
	if cfg.Storage.UploadDir != "uploads" {
		t.Errorf("Expected default upload dir, got %s", cfg.Storage.UploadDir)
	}
	if cfg.Transcription.APIKey != "env-key" {
		t.Errorf("Expected api key from environment, got %q", cfg.Transcription.APIKey)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                "9090",
		"ASSEMBLYAI_API_KEY":  "secret",
		"ASSEMBLYAI_ENDPOINT": "http://localhost:8089",
		"UPLOAD_DIR":          "/var/lib/uploads",
		"PUBLIC_BASE_URL":     "https://media.example.com",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Transcription.APIKey != "secret" {
		t.Errorf("Expected api key override, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Transcription.Endpoint != "http://localhost:8089" {
		t.Errorf("Expected endpoint override, got %q", cfg.Transcription.Endpoint)
	}
	if cfg.Storage.UploadDir != "/var/lib/uploads" {
		t.Errorf("Expected upload dir override, got %q", cfg.Storage.UploadDir)
	}
	if cfg.HTTP.PublicBaseURL != "https://media.example.com" {
		t.Errorf("Expected public base url override, got %q", cfg.HTTP.PublicBaseURL)
	}

	env["PORT"] = "eighty"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Errorf("Expected error for non-numeric PORT")
	}
}

func TestDurationHelpers(t *testing.T) {
	http := HTTPConfig{ReadTimeout: 15, WriteTimeout: 0, ShutdownTimeout: 10}

	if http.GetReadTimeoutDuration() != 15*time.Second {
		t.Errorf("Expected 15 seconds, got %v", http.GetReadTimeoutDuration())
	}
	if http.GetWriteTimeoutDuration() != 0 {
		t.Errorf("Expected disabled write timeout, got %v", http.GetWriteTimeoutDuration())
	}
	if http.GetShutdownTimeoutDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", http.GetShutdownTimeoutDuration())
	}

	transcoder := TranscoderConfig{Timeout: 120}
	if transcoder.GetTimeoutDuration() != 2*time.Minute {
		t.Errorf("Expected 2 minutes, got %v", transcoder.GetTimeoutDuration())
	}

	transcription := TranscriptionConfig{}
	if transcription.GetTimeoutDuration() != 0 {
		t.Errorf("Expected no timeout, got %v", transcription.GetTimeoutDuration())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/tmp/service.log"},
			valid:  true,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
