// Command reporecon is the client-side audio bridge for the RepoRecon voice
// assistant: it streams microphone audio to the backend over a websocket and
// plays the assistant's replies through the default output device.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/reporecon/internal/bridge"
	"github.com/MrWong99/reporecon/internal/config"
	"github.com/MrWong99/reporecon/internal/health"
	"github.com/MrWong99/reporecon/internal/observe"
	"github.com/MrWong99/reporecon/internal/session"
	"github.com/MrWong99/reporecon/pkg/audio/capture"
	"github.com/MrWong99/reporecon/pkg/audio/playback"
)

var version = "dev" // overridden at build time via -ldflags

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "reporecon: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "reporecon: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("reporecon starting",
		"version", version,
		"config", *configPath,
		"server_url", cfg.Server.URL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "reporecon",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Audio pipeline ────────────────────────────────────────────────────────
	mic := capture.New(capture.Config{
		SampleRate:      cfg.Audio.CaptureRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
	})

	device, err := playback.OpenDevice(cfg.Audio.SessionRate)
	if err != nil {
		slog.Error("failed to open playback device", "err", err)
		return 1
	}
	defer func() {
		if err := device.Close(); err != nil {
			slog.Warn("playback device close error", "err", err)
		}
	}()

	scheduler := playback.NewScheduler(device, device,
		playback.WithJitterMargin(cfg.Audio.JitterMargin()))

	// ── Transport and session ─────────────────────────────────────────────────
	client := bridge.New(cfg.Server.URL,
		bridge.WithSampleRate(cfg.Audio.SessionRate),
		bridge.WithMetrics(metrics))

	controller := session.New(client, mic, scheduler, session.WithMetrics(metrics))
	controller.OnStatusChange(func(s session.Status) {
		slog.Info("session status", "status", s)
	})
	controller.OnEvent(func(evt bridge.Event) {
		slog.Info("assistant event", "kind", evt.Kind, "payload", string(evt.Payload))
	})

	// ── Metrics/health sidecar ────────────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		srv := sidecarServer(cfg.Server.MetricsAddr, controller)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener failed", "addr", cfg.Server.MetricsAddr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		slog.Info("metrics listener started", "addr", cfg.Server.MetricsAddr)
	}

	go samplePipelineCounters(ctx, metrics, mic, scheduler)

	// ── Run ───────────────────────────────────────────────────────────────────
	if err := controller.Start(ctx); err != nil {
		slog.Error("failed to start session", "err", err)
		var mediaErr *capture.MediaAccessError
		if errors.As(err, &mediaErr) {
			fmt.Fprintln(os.Stderr, "reporecon: microphone unavailable — check device permissions")
		}
		return 1
	}

	go readCommands(ctx, controller, stop)

	slog.Info("session running — press Enter to end a turn, Ctrl+D or Ctrl+C to quit")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	controller.Stop()
	device.Flush()
	slog.Info("goodbye",
		"capture_drops", mic.Dropped(),
		"playback_underruns", scheduler.Underruns(),
	)
	return 0
}

// readCommands turns stdin into session commands: a blank line (Enter)
// finalizes the current turn, anything starting with "q" or EOF quits.
func readCommands(ctx context.Context, c *session.Controller, quit func()) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "q") {
			quit()
			return
		}
		if err := c.EndTurn(); err != nil {
			slog.Warn("end turn failed", "err", err)
		}
	}
	quit()
}

// sidecarServer builds the HTTP server exposing /metrics and the probe
// endpoints. Readiness tracks the session controller: an errored session
// means the bridge needs intervention.
func sidecarServer(addr string, c *session.Controller) *http.Server {
	probes := health.New(health.Checker{
		Name: "session",
		Check: func() error {
			if c.Status() == session.StatusError {
				return c.Err()
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	probes.Register(mux)

	return &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// samplePipelineCounters periodically publishes the deltas of the pipeline's
// internal drop and under-run counters as metrics.
func samplePipelineCounters(ctx context.Context, m *observe.Metrics, mic *capture.Microphone, s *playback.Scheduler) {
	const interval = 10 * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastDrops, lastUnderruns int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d := mic.Dropped(); d > lastDrops {
				m.CaptureDrops.Add(ctx, d-lastDrops)
				lastDrops = d
			}
			if u := s.Underruns(); u > lastUnderruns {
				m.Underruns.Add(ctx, u-lastUnderruns)
				lastUnderruns = u
			}
		}
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
