package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Compile-time assertions that Device can back a [Scheduler].
var _ Clock = (*Device)(nil)
var _ Sink = (*Device)(nil)

// defaultFramesPerBuffer is the portaudio render quantum. 256 samples at
// 24 kHz is ~10.7 ms, comfortably below the 20 ms frame quantum.
const defaultFramesPerBuffer = 256

// segment is a scheduled run of samples anchored at an absolute position on
// the device timeline, measured in samples since Start.
type segment struct {
	start int64
	pcm   []float32
}

// Device renders scheduled float samples through the default portaudio
// output, mono. It keeps a sample-accurate timeline: Now derives from the
// number of samples handed to the hardware, and PlayAt anchors segments at
// absolute sample positions, so back-to-back scheduling produces gap-free
// output regardless of render-callback timing.
type Device struct {
	sampleRate int
	stream     *portaudio.Stream

	mu       sync.Mutex
	segments []segment
	pos      int64 // samples rendered since Start
	closed   bool
}

// OpenDevice initializes portaudio and opens the default mono output stream
// at sampleRate. The stream starts immediately; silence is rendered until
// segments are scheduled.
func OpenDevice(sampleRate int) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("playback: initialize portaudio: %w", err)
	}

	d := &Device{sampleRate: sampleRate}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), defaultFramesPerBuffer, d.render)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: open output stream: %w", err)
	}
	d.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: start output stream: %w", err)
	}
	return d, nil
}

// render is the portaudio output callback. It runs on the real-time audio
// thread: it only zero-fills, copies overlapping segment samples, and
// advances the sample counter.
func (d *Device) render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	winStart := d.pos
	winEnd := d.pos + int64(len(out))

	kept := d.segments[:0]
	for _, seg := range d.segments {
		segEnd := seg.start + int64(len(seg.pcm))
		if segEnd <= winStart {
			continue // fully played, drop
		}
		if seg.start < winEnd {
			// Overlap: copy the intersecting samples.
			from := max(seg.start, winStart)
			to := min(segEnd, winEnd)
			for p := from; p < to; p++ {
				out[p-winStart] += seg.pcm[p-seg.start]
			}
		}
		kept = append(kept, seg)
	}
	d.segments = kept
	d.pos = winEnd
}

// Now returns the current playback time: samples rendered so far divided by
// the sample rate.
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.pos) * time.Second / time.Duration(d.sampleRate)
}

// PlayAt schedules pcm to start at the given point on the device timeline.
// Start times already in the past play whatever portion remains.
func (d *Device) PlayAt(start time.Duration, pcm []float32) {
	if len(pcm) == 0 {
		return
	}
	startSample := int64(start) * int64(d.sampleRate) / int64(time.Second)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.segments = append(d.segments, segment{start: startSample, pcm: pcm})
}

// Flush discards all pending segments. In-flight samples already handed to
// the hardware finish audibly; nothing queued behind them is re-triggered.
func (d *Device) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = nil
}

// Close stops the stream and releases portaudio. Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.segments = nil
	d.mu.Unlock()

	var errs []error
	if err := d.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("playback: stop stream: %w", err))
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("playback: close stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("playback: terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}
