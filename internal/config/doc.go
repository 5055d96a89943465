// Package config provides configuration loading and validation for the voice
// coaching streaming service. It handles YAML-based configuration with struct
// validation covering the transport, audio, session, and transcription layers.
package config
