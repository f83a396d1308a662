package playback_test

import (
	"testing"
	"time"

	"github.com/MrWong99/reporecon/pkg/audio"
	"github.com/MrWong99/reporecon/pkg/audio/playback"
)

// fakeClock is a manually-advanced device timeline.
type fakeClock struct {
	now time.Duration
}

func (c *fakeClock) Now() time.Duration { return c.now }

// recordingSink captures every scheduled window.
type recordingSink struct {
	starts    []time.Duration
	durations []time.Duration
	samples   [][]float32
}

func (s *recordingSink) PlayAt(start time.Duration, pcm []float32) {
	s.starts = append(s.starts, start)
	s.durations = append(s.durations, time.Duration(len(pcm))*time.Second/24000)
	s.samples = append(s.samples, pcm)
}

// frame builds a silent frame of n samples at 24 kHz.
func frame(n int) audio.Frame {
	return audio.Frame{Data: make([]byte, n*2), SampleRate: 24000}
}

func TestScheduler_BackToBackNoOverlap(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.NewScheduler(clock, sink)

	// All frames arrive while the cursor is still ahead of real time.
	const n = 480 // 20 ms at 24 kHz
	for i := 0; i < 5; i++ {
		s.Enqueue(frame(n))
	}

	if len(sink.starts) != 5 {
		t.Fatalf("scheduled %d frames, want 5", len(sink.starts))
	}
	frameDur := time.Duration(n) * time.Second / 24000
	for i := 1; i < len(sink.starts); i++ {
		wantStart := sink.starts[i-1] + frameDur
		if sink.starts[i] != wantStart {
			t.Errorf("frame %d starts at %v, want %v (gap or overlap)", i, sink.starts[i], wantStart)
		}
	}
	if got, want := s.Cursor(), sink.starts[0]+5*frameDur; got != want {
		t.Errorf("cursor = %v, want %v", got, want)
	}
	if s.Underruns() != 0 {
		t.Errorf("underruns = %d, want 0", s.Underruns())
	}
}

func TestScheduler_FirstFramePrimesWithoutJitter(t *testing.T) {
	clock := &fakeClock{now: 37 * time.Millisecond}
	sink := &recordingSink{}
	s := playback.NewScheduler(clock, sink)

	s.Enqueue(frame(480))

	if len(sink.starts) != 1 {
		t.Fatalf("scheduled %d frames, want 1", len(sink.starts))
	}
	if sink.starts[0] != clock.now {
		t.Errorf("first frame starts at %v, want %v (no jitter margin on prime)", sink.starts[0], clock.now)
	}
	if s.Underruns() != 0 {
		t.Errorf("underruns = %d, want 0", s.Underruns())
	}
}

func TestScheduler_UnderrunReArmsJitterBuffer(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.NewScheduler(clock, sink)

	frameDur := frame(480).Duration()

	s.Enqueue(frame(480)) // primes at t=0, cursor = frameDur

	// Time races past the cursor: the queue is empty and real time has
	// overtaken it.
	clock.now = 500 * time.Millisecond
	s.Enqueue(frame(480))

	if got, want := sink.starts[1], clock.now+playback.DefaultJitterMargin; got != want {
		t.Errorf("post-underrun frame starts at %v, want %v", got, want)
	}
	if s.Underruns() != 1 {
		t.Errorf("underruns = %d, want 1", s.Underruns())
	}

	// The next frame rides the re-armed cursor with zero added latency.
	clock.now += 10 * time.Millisecond
	s.Enqueue(frame(480))
	if got, want := sink.starts[2], sink.starts[1]+frameDur; got != want {
		t.Errorf("frame after re-arm starts at %v, want %v", got, want)
	}
	if s.Underruns() != 1 {
		t.Errorf("underruns = %d, want 1 (no re-arm without under-run)", s.Underruns())
	}
}

// TestScheduler_JitterScenario replays the canonical arrival pattern: five
// 320-sample frames at 24 kHz with 10/10/500/10/10 ms inter-arrival gaps.
// The 500 ms stall drains the queue, so exactly one re-arm occurs, before
// the fourth frame.
func TestScheduler_JitterScenario(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.NewScheduler(clock, sink)

	frameDur := frame(320).Duration() // 320/24000 s ≈ 13.33 ms
	gaps := []time.Duration{
		10 * time.Millisecond,
		10 * time.Millisecond,
		500 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
	}
	for _, gap := range gaps {
		clock.now += gap
		s.Enqueue(frame(320))
	}

	if len(sink.starts) != 5 {
		t.Fatalf("scheduled %d frames, want 5", len(sink.starts))
	}
	if s.Underruns() != 1 {
		t.Fatalf("underruns = %d, want exactly 1", s.Underruns())
	}

	// The re-arm happens on the fourth frame: it starts margin after its
	// arrival time rather than at the stale cursor.
	arrival4 := gaps[0] + gaps[1] + gaps[2] + gaps[3]
	if got, want := sink.starts[3], arrival4+playback.DefaultJitterMargin; got != want {
		t.Errorf("frame 4 starts at %v, want %v", got, want)
	}

	// Total scheduled duration is number of frames × frame duration; the
	// only discontinuity is the single 150 ms re-arm.
	var total time.Duration
	for _, d := range sink.durations {
		total += d
	}
	if want := 5 * frameDur; total != want {
		t.Errorf("total scheduled duration = %v, want %v", total, want)
	}
	// After the re-arm the timeline is fully determined: frames 4 and 5 play
	// back-to-back from arrival4 + margin. Anything else means drift crept in.
	end := sink.starts[4] + frameDur
	if want := arrival4 + playback.DefaultJitterMargin + 2*frameDur; end != want {
		t.Errorf("audible end = %v, want %v", end, want)
	}
}

func TestScheduler_OddLengthFrameUsesActualDuration(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.NewScheduler(clock, sink)

	s.Enqueue(frame(480))
	s.Enqueue(frame(100)) // unexpected length, still scheduled as-is
	s.Enqueue(frame(480))

	if len(sink.samples[1]) != 100 {
		t.Errorf("odd frame scheduled %d samples, want 100", len(sink.samples[1]))
	}
	oddDur := frame(100).Duration()
	if got, want := sink.starts[2], sink.starts[1]+oddDur; got != want {
		t.Errorf("frame after odd frame starts at %v, want %v", got, want)
	}
}

func TestScheduler_DecodesToFloat(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.NewScheduler(clock, sink)

	s.Enqueue(audio.EncodeFrame([]float32{-1.0, 0, 0.5}, 24000))

	got := sink.samples[0]
	want := []float32{-1.0, 0, 0.5} // 0.5 encodes to 16384, decodes exactly
	for i := range want {
		diff := got[i] - want[i]
		if diff < -1e-6 || diff > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScheduler_ResetRewindsCursor(t *testing.T) {
	clock := &fakeClock{}
	sink := &recordingSink{}
	s := playback.NewScheduler(clock, sink)

	s.Enqueue(frame(480))
	s.Reset()
	if s.Cursor() != 0 {
		t.Errorf("cursor after Reset = %v, want 0", s.Cursor())
	}

	// Post-reset the first frame primes again instead of counting an under-run.
	clock.now = time.Second
	s.Enqueue(frame(480))
	if s.Underruns() != 0 {
		t.Errorf("underruns = %d, want 0", s.Underruns())
	}
	if got := sink.starts[len(sink.starts)-1]; got != clock.now {
		t.Errorf("first post-reset frame starts at %v, want %v", got, clock.now)
	}
}
