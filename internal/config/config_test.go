package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/reporecon/internal/config"
)

const validYAML = `
server:
  url: ws://localhost:8000/ws
  log_level: debug
  metrics_addr: ":9090"
audio:
  capture_rate: 16000
  session_rate: 24000
  jitter_margin_ms: 150
  frames_per_buffer: 512
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.URL != "ws://localhost:8000/ws" {
		t.Errorf("server.url: got %q", cfg.Server.URL)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("audio.frames_per_buffer: got %d, want 512", cfg.Audio.FramesPerBuffer)
	}
	if got := cfg.Audio.JitterMargin(); got != 150*time.Millisecond {
		t.Errorf("JitterMargin() = %v, want 150ms", got)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("server:\n  url: wss://recon.example/ws\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("default log_level: got %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.CaptureRate != 16000 || cfg.Audio.SessionRate != 24000 {
		t.Errorf("default rates: got %d/%d, want 16000/24000", cfg.Audio.CaptureRate, cfg.Audio.SessionRate)
	}
	if cfg.Audio.JitterMarginMS != 150 {
		t.Errorf("default jitter_margin_ms: got %d, want 150", cfg.Audio.JitterMarginMS)
	}
}

func TestLoadFromReader_EnvOverride(t *testing.T) {
	t.Setenv("RECON_SERVER_URL", "wss://override.example/ws")
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.URL != "wss://override.example/ws" {
		t.Errorf("server.url: got %q, want env override", cfg.Server.URL)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  url: ws://x/ws\n  shenanigans: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing url", "audio:\n  capture_rate: 16000\n", "server.url is required"},
		{"bad scheme", "server:\n  url: http://recon.example/ws\n", "ws:// or wss://"},
		{"bad log level", "server:\n  url: ws://x/ws\n  log_level: loud\n", "log_level"},
		{"negative jitter", "server:\n  url: ws://x/ws\naudio:\n  jitter_margin_ms: -1\n", "jitter_margin_ms"},
		{"odd capture rate", "server:\n  url: ws://x/ws\naudio:\n  capture_rate: 11025\n", "divisible by 50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
