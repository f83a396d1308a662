// Package audio defines the frame type, PCM codec, and capture-side chunking
// for the RepoRecon audio bridge.
//
// The bridge speaks exactly one format: mono, little-endian signed 16-bit
// PCM, packetized into fixed 20 ms frames. [Chunker] turns the irregular
// float sample blocks delivered by audio hardware into that form; the codec
// functions define the quantization policy shared by both directions.
//
// This package lives under pkg/ because alternative capture or playback
// backends are expected to build on these primitives.
package audio

import "time"

// FrameQuantum is the fixed duration of every frame emitted by a [Chunker].
const FrameQuantum = 20 * time.Millisecond

// Chunker converts an unbounded stream of float sample blocks — arbitrary,
// possibly irregular block sizes as delivered by the hardware — into frames
// of exactly one [FrameQuantum] at its sample rate.
//
// A Chunker is owned by the capture callback and runs on the real-time audio
// thread: it never blocks, never allocates beyond its accumulator growth,
// and is not safe for concurrent use.
type Chunker struct {
	sampleRate int
	frameSize  int // samples per frame

	// acc holds leftover samples smaller than one frame between calls.
	acc []float32
}

// NewChunker creates a Chunker emitting frames of sampleRate/50 samples
// (20 ms granularity).
func NewChunker(sampleRate int) *Chunker {
	return &Chunker{
		sampleRate: sampleRate,
		frameSize:  sampleRate / 50,
		acc:        make([]float32, 0, sampleRate/50*2),
	}
}

// Push appends block to the accumulator and returns every complete frame now
// available, in generation order. A nil or empty block is a no-op, not an
// error. Push never emits a partial frame; the remainder stays buffered for
// the next call. Malformed input degrades to whatever the codec clamps it
// to — there is no failure path.
func (c *Chunker) Push(block []float32) []Frame {
	if len(block) > 0 {
		c.acc = append(c.acc, block...)
	}
	if len(c.acc) < c.frameSize {
		return nil
	}

	frames := make([]Frame, 0, len(c.acc)/c.frameSize)
	for len(c.acc) >= c.frameSize {
		frames = append(frames, EncodeFrame(c.acc[:c.frameSize], c.sampleRate))
		c.acc = c.acc[c.frameSize:]
	}

	// Re-home the remainder so the backing array cannot grow without bound.
	c.acc = append(make([]float32, 0, c.frameSize*2), c.acc...)
	return frames
}

// Pending returns the number of buffered samples not yet forming a frame.
// Always < the frame size after a Push.
func (c *Chunker) Pending() int { return len(c.acc) }

// FrameSize returns the number of samples per emitted frame.
func (c *Chunker) FrameSize() int { return c.frameSize }

// Reset discards any buffered samples. Called between sessions.
func (c *Chunker) Reset() { c.acc = c.acc[:0] }
