package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Normalizer    NormalizerConfig    `yaml:"normalizer"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains WebSocket server configuration
type ServerConfig struct {
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	ReadLimit int64  `yaml:"read_limit"` // max inbound frame size in bytes
}

// HTTPConfig contains monitoring API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains canonical audio parameters and trigger thresholds
type AudioConfig struct {
	SampleRate          int `yaml:"sample_rate"`
	Channels            int `yaml:"channels"`
	BitDepth            int `yaml:"bit_depth"`
	SegmentTriggerBytes int `yaml:"segment_trigger_bytes"` // discrete chunk path
	BufferTriggerBytes  int `yaml:"buffer_trigger_bytes"`  // continuous raw path
}

// SessionConfig contains session lifecycle configuration
type SessionConfig struct {
	ScratchDir   string `yaml:"scratch_dir"`   // empty means os.TempDir()
	IdleTimeout  int    `yaml:"idle_timeout"`  // seconds
	FinalizeWait int    `yaml:"finalize_wait"` // seconds
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Language      string `yaml:"language"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// NormalizerConfig contains audio format converter configuration
type NormalizerConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
	Timeout    int    `yaml:"timeout"` // seconds per conversion
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Normalizer.Validate(); err != nil {
		return fmt.Errorf("normalizer config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadLimit < 1024 {
		return fmt.Errorf("read_limit must be at least 1024 bytes, got %d", s.ReadLimit)
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

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for the canonical format, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono) for the canonical format, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16 for the canonical format, got %d", a.BitDepth)
	}

	if a.SegmentTriggerBytes < 1 {
		return fmt.Errorf("segment_trigger_bytes must be positive, got %d", a.SegmentTriggerBytes)
	}

	if a.BufferTriggerBytes < 1 {
		return fmt.Errorf("buffer_trigger_bytes must be positive, got %d", a.BufferTriggerBytes)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	if s.FinalizeWait < 1 {
		return fmt.Errorf("finalize_wait must be at least 1 second, got %d", s.FinalizeWait)
	}

	if s.ScratchDir != "" {
		info, err := os.Stat(s.ScratchDir)
		if err != nil {
			return fmt.Errorf("scratch_dir %s is not accessible: %w", s.ScratchDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("scratch_dir %s is not a directory", s.ScratchDir)
		}
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates normalizer configuration
func (n *NormalizerConfig) Validate() error {
	if n.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if n.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", n.Timeout)
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

// GetIdleTimeout returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetIdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetFinalizeWait returns the finalization wait bound as a time.Duration
func (s *SessionConfig) GetFinalizeWait() time.Duration {
	return time.Duration(s.FinalizeWait) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the conversion timeout as a time.Duration
func (n *NormalizerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}
