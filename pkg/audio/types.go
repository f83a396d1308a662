package audio

import "time"

// Frame is a single packetized unit of audio flowing through the bridge:
// little-endian signed 16-bit PCM, mono, at a fixed sample rate. Frames are
// produced by a [Chunker] or decoded off the wire, and are never mutated
// after creation — every consumer treats Data as read-only.
type Frame struct {
	// Data is the raw little-endian int16 PCM payload. One frame on the wire
	// is exactly one binary message; there is no framing header.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for capture, 24000 for the session).
	SampleRate int
}

// Samples returns the number of int16 samples in the frame.
func (f Frame) Samples() int { return len(f.Data) / 2 }

// Duration returns the audible length of the frame. It derives from the
// actual payload length, not an assumed constant, so frames of unexpected
// size still schedule correctly.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}
