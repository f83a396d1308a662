// Package playback schedules inbound PCM frames for gap-free, correctly
// ordered audible output despite irregular network arrival timing.
//
// The core type is [Scheduler], which owns the playback queue and the clock
// cursor. It is decoupled from real audio hardware through the [Clock] and
// [Sink] interfaces; [Device] implements both on top of a portaudio output
// stream, and tests substitute fakes.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/reporecon/pkg/audio"
)

// DefaultJitterMargin is the latency deliberately re-introduced after an
// under-run so that ordinary network jitter does not cause audible gaps.
const DefaultJitterMargin = 150 * time.Millisecond

// Clock reports the current position on the output device's timeline.
type Clock interface {
	// Now returns the device's current playback time, monotonically
	// non-decreasing from stream start.
	Now() time.Duration
}

// Sink accepts decoded float samples for playback starting at a given point
// on the device timeline. Implementations must tolerate start times in the
// past (play what remains) and must not block.
type Sink interface {
	PlayAt(start time.Duration, pcm []float32)
}

// Option is a functional option for configuring a [Scheduler].
type Option func(*Scheduler)

// WithJitterMargin overrides [DefaultJitterMargin]. Useful in tests and for
// tuning against unusually lossy links.
func WithJitterMargin(d time.Duration) Option {
	return func(s *Scheduler) { s.margin = d }
}

// Scheduler consumes inbound frames and schedules them back-to-back on the
// device timeline. Frames play in strict arrival order; once dequeued a frame
// is never re-queued or reordered. The cursor advances by exactly each
// frame's duration, so no drift accumulates from the scheduling itself —
// only the deliberate jitter re-arm after an under-run adds latency.
//
// Scheduler is safe for concurrent use, though in practice a single receive
// loop feeds it.
type Scheduler struct {
	clock  Clock
	sink   Sink
	margin time.Duration

	mu        sync.Mutex
	queue     []audio.Frame
	cursor    time.Duration
	primed    bool
	underruns int64
}

// NewScheduler creates a Scheduler playing through sink on clock's timeline.
func NewScheduler(clock Clock, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		sink:   sink,
		margin: DefaultJitterMargin,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue appends f to the playback queue and drains the queue onto the
// device timeline. Frames of unexpected length are scheduled with their
// actual duration — no truncation or padding.
func (s *Scheduler) Enqueue(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, f)
	s.drainLocked()
}

// drainLocked schedules every queued frame. Must be called with s.mu held.
func (s *Scheduler) drainLocked() {
	for len(s.queue) > 0 {
		f := s.queue[0]
		s.queue = s.queue[1:]

		now := s.clock.Now()
		start := s.cursor
		switch {
		case !s.primed:
			// First frame of the session: align the cursor with real time,
			// no jitter penalty.
			s.primed = true
			if start < now {
				start = now
			}
		case start < now:
			// The queue emptied out and time passed: re-arm the jitter
			// buffer so subsequent frames have headroom.
			start = now + s.margin
			s.underruns++
			slog.Debug("playback under-run, re-arming jitter buffer",
				"behind", now-s.cursor,
				"margin", s.margin,
			)
		}

		s.sink.PlayAt(start, audio.DecodeFrame(f))
		s.cursor = start + f.Duration()
	}
}

// Reset discards all queued frames and rewinds the cursor. Called at session
// teardown; the next session starts from a clean timeline.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.cursor = 0
	s.primed = false
}

// Underruns returns the number of jitter re-arms so far. The counter is
// cumulative for the scheduler's lifetime; Reset does not clear it.
func (s *Scheduler) Underruns() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underruns
}

// Cursor returns the next free timestamp on the device timeline.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
