// Package config provides configuration loading and validation for the audio upload service.
// It handles YAML-based configuration with per-section validation and lets the
// environment override the listening port, storage location and provider credentials.
package config
