// Package config provides the configuration schema and loader for the
// RepoRecon bridge client.
package config

import (
	"time"
)

// LogLevel controls log verbosity for the bridge.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the bridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
}

// ServerConfig holds backend connectivity and logging settings.
type ServerConfig struct {
	// URL is the backend websocket endpoint (e.g., "ws://localhost:8000/ws").
	// Overridable via the RECON_SERVER_URL environment variable.
	URL string `yaml:"url"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address for the /metrics and health endpoints
	// (e.g., ":9090"). Empty disables the sidecar listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig holds the audio parameters, fixed for the lifetime of one
// session.
type AudioConfig struct {
	// CaptureRate is the microphone sample rate in Hz. Default 16000.
	CaptureRate int `yaml:"capture_rate"`

	// SessionRate is the canonical session sample rate in Hz used for
	// inbound playback. Default 24000.
	SessionRate int `yaml:"session_rate"`

	// JitterMarginMS is the latency re-introduced after a playback
	// under-run, in milliseconds. Default 150.
	JitterMarginMS int `yaml:"jitter_margin_ms"`

	// FramesPerBuffer is the portaudio callback block size in samples.
	// Default 256.
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// JitterMargin returns the configured jitter margin as a duration.
func (a AudioConfig) JitterMargin() time.Duration {
	return time.Duration(a.JitterMarginMS) * time.Millisecond
}

// applyDefaults fills zero values with the canonical session parameters.
func (c *Config) applyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.CaptureRate == 0 {
		c.Audio.CaptureRate = 16000
	}
	if c.Audio.SessionRate == 0 {
		c.Audio.SessionRate = 24000
	}
	if c.Audio.JitterMarginMS == 0 {
		c.Audio.JitterMarginMS = 150
	}
	if c.Audio.FramesPerBuffer == 0 {
		c.Audio.FramesPerBuffer = 256
	}
}
