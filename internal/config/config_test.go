package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig returns a fully valid configuration for mutation in tests
func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:   "0.0.0.0",
			Port:      8000,
			ReadLimit: 1048576,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8001,
		},
		Audio: AudioConfig{
			SampleRate:          16000,
			Channels:            1,
			BitDepth:            16,
			SegmentTriggerBytes: 4096,
			BufferTriggerBytes:  8192,
		},
		Session: SessionConfig{
			ScratchDir:   "",
			IdleTimeout:  300,
			FinalizeWait: 5,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "https://api.example.com/transcribe",
			APIKey:        "test-key",
			Language:      "en",
			Model:         "whisper-tiny.en",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 10,
		},
		Normalizer: NormalizerConfig{
			FFmpegPath: "ffmpeg",
			Timeout:    20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "read limit too small",
			mutate:      func(c *Config) { c.Server.ReadLimit = 512 },
			expectError: true,
			errorMsg:    "read_limit must be at least 1024",
		},
		{
			name:        "invalid audio sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 8000 },
			expectError: true,
			errorMsg:    "sample_rate must be 16000 Hz",
		},
		{
			name:        "stereo audio rejected",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "zero segment trigger",
			mutate:      func(c *Config) { c.Audio.SegmentTriggerBytes = 0 },
			expectError: true,
			errorMsg:    "segment_trigger_bytes must be positive",
		},
		{
			name:        "zero finalize wait",
			mutate:      func(c *Config) { c.Session.FinalizeWait = 0 },
			expectError: true,
			errorMsg:    "finalize_wait must be at least 1 second",
		},
		{
			name:        "empty transcription endpoint",
			mutate:      func(c *Config) { c.Transcription.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name:        "negative retries",
			mutate:      func(c *Config) { c.Transcription.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries cannot be negative",
		},
		{
			name:        "empty ffmpeg path",
			mutate:      func(c *Config) { c.Normalizer.FFmpegPath = "" },
			expectError: true,
			errorMsg:    "ffmpeg_path cannot be empty",
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
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
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
server:
  address: "0.0.0.0"
  port: 8000
  read_limit: 1048576
http:
  enabled: true
  address: "0.0.0.0"
  port: 8001
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  segment_trigger_bytes: 4096
  buffer_trigger_bytes: 8192
session:
  idle_timeout: 300
  finalize_wait: 5
transcription:
  endpoint: "https://api.example.com/transcribe"
  api_key: "test-key"
  language: "en"
  model: "whisper-tiny.en"
  timeout: 30
  max_retries: 3
  max_concurrent: 10
normalizer:
  ffmpeg_path: "ffmpeg"
  timeout: 20
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  port: 8000
  read_limit: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
server:
  port: 8000
  read_limit: 1048576
  # missing address
`,
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	session := SessionConfig{
		IdleTimeout:  300,
		FinalizeWait: 5,
	}

	if session.GetIdleTimeout() != 300*time.Second {
		t.Errorf("Expected 300 seconds, got %v", session.GetIdleTimeout())
	}

	if session.GetFinalizeWait() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", session.GetFinalizeWait())
	}

	transcription := TranscriptionConfig{
		Timeout: 30,
	}

	if transcription.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", transcription.GetTimeoutDuration())
	}

	normalizer := NormalizerConfig{
		Timeout: 20,
	}

	if normalizer.GetTimeoutDuration() != 20*time.Second {
		t.Errorf("Expected 20 seconds, got %v", normalizer.GetTimeoutDuration())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name: "valid json to stdout",
			config: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			valid: true,
		},
		{
			name: "valid text to stderr",
			config: LoggingConfig{
				Level:  "debug",
				Format: "text",
				Output: "stderr",
			},
			valid: true,
		},
		{
			name: "invalid log level",
			config: LoggingConfig{
				Level:  "trace",
				Format: "json",
				Output: "stdout",
			},
			valid: false,
		},
		{
			name: "invalid format",
			config: LoggingConfig{
				Level:  "info",
				Format: "xml",
				Output: "stdout",
			},
			valid: false,
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

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
