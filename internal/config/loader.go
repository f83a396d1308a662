package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. The RECON_SERVER_URL environment variable, when set, overrides
// server.url.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	if url := os.Getenv("RECON_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	cfg.applyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.URL == "" {
		errs = append(errs, fmt.Errorf("server.url is required"))
	} else if !strings.HasPrefix(cfg.Server.URL, "ws://") && !strings.HasPrefix(cfg.Server.URL, "wss://") {
		errs = append(errs, fmt.Errorf("server.url %q must use the ws:// or wss:// scheme", cfg.Server.URL))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.CaptureRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate must be positive, got %d", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.SessionRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.session_rate must be positive, got %d", cfg.Audio.SessionRate))
	}
	// Frames are a fixed 20 ms quantum; a rate that does not divide evenly
	// would silently change the frame size.
	if cfg.Audio.CaptureRate > 0 && cfg.Audio.CaptureRate%50 != 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d is not divisible by 50 (20 ms framing)", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.JitterMarginMS < 0 {
		errs = append(errs, fmt.Errorf("audio.jitter_margin_ms must not be negative, got %d", cfg.Audio.JitterMarginMS))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", cfg.Audio.FramesPerBuffer))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
