// Package capture acquires the microphone through portaudio and turns its
// float sample blocks into fixed 20 ms PCM frames.
//
// All sample processing happens inside the portaudio input callback — the
// dedicated real-time audio thread. The only state shared with the rest of
// the process is a bounded channel of immutable [audio.Frame] values; the
// callback hands frames off with a non-blocking send and drops (and counts)
// frames when the consumer stalls, so the real-time thread never blocks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/reporecon/pkg/audio"
)

// MediaAccessError reports that the microphone could not be acquired —
// denied, busy, or absent. It is fatal to session start.
type MediaAccessError struct {
	Err error
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("capture: microphone unavailable: %v", e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// Config holds capture parameters, fixed for the lifetime of one session.
type Config struct {
	// SampleRate in Hz for capture-side framing granularity (default 16000).
	SampleRate int

	// FramesPerBuffer is the portaudio callback block size in samples.
	// Default 256 (~16 ms at 16 kHz).
	FramesPerBuffer int

	// ChannelBuffer is the frame handoff channel depth. Default 32
	// (640 ms of audio headroom before frames drop).
	ChannelBuffer int
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = 256
	}
	if c.ChannelBuffer == 0 {
		c.ChannelBuffer = 32
	}
}

// Microphone owns the default portaudio input device for the duration of a
// session. Device resources are acquired in Start and unconditionally
// released in Stop; a Microphone is reusable across sessions.
//
// Microphone is safe for concurrent use.
type Microphone struct {
	cfg Config

	mu      sync.Mutex
	stream  *portaudio.Stream
	frames  chan audio.Frame
	dropped atomic.Int64
}

// New creates a Microphone with the given config. No device is touched until
// Start.
func New(cfg Config) *Microphone {
	cfg.applyDefaults()
	return &Microphone{cfg: cfg}
}

// Start acquires the microphone and begins capture. The returned channel
// delivers complete frames in generation order and is closed by Stop.
// Acquisition failure is reported as a [*MediaAccessError]; ctx only governs
// the acquisition itself — once capturing, the stream runs until Stop.
func (m *Microphone) Start(ctx context.Context) (<-chan audio.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil, fmt.Errorf("capture: already started")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, &MediaAccessError{Err: err}
	}

	frames := make(chan audio.Frame, m.cfg.ChannelBuffer)
	chunker := audio.NewChunker(m.cfg.SampleRate)

	// The callback runs on portaudio's real-time thread. Chunking happens
	// here; completed frames cross to the event side via the bounded channel.
	callback := func(in []float32) {
		for _, f := range chunker.Push(in) {
			select {
			case frames <- f:
			default:
				m.dropped.Add(1)
			}
		}
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), m.cfg.FramesPerBuffer, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, &MediaAccessError{Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, &MediaAccessError{Err: err}
	}

	m.stream = stream
	m.frames = frames
	slog.Debug("microphone capture started",
		"sample_rate", m.cfg.SampleRate,
		"frames_per_buffer", m.cfg.FramesPerBuffer,
	)
	return frames, nil
}

// Stop releases the microphone and closes the frame channel. Safe to call
// from any state and idempotent; after Stop the Microphone can Start again.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}

	// Stop the callback before closing the channel so the real-time thread
	// cannot send on a closed channel.
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	termErr := portaudio.Terminate()
	close(m.frames)
	m.stream = nil
	m.frames = nil

	if err := errors.Join(stopErr, closeErr, termErr); err != nil {
		return fmt.Errorf("capture: release microphone: %w", err)
	}
	return nil
}

// Dropped returns the cumulative number of frames discarded because the
// consumer fell behind the real-time thread.
func (m *Microphone) Dropped() int64 { return m.dropped.Load() }
