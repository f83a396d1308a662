package audio

import (
	"encoding/binary"
	"math"
)

// EncodeSample quantizes a float sample in [-1.0, 1.0] to int16 PCM.
//
// Negative values scale by 32768 and non-negative values by 32767 so that
// -1.0 and +1.0 both map onto the full int16 range without overflow. The
// decode side divides by 32768 uniformly, which makes the round trip inexact
// for positive samples by at most 1/32768 — an accepted, bounded quantization
// asymmetry, not a defect.
func EncodeSample(s float32) int16 {
	var v float64
	if s < 0 {
		v = math.Round(float64(s) * 32768)
	} else {
		v = math.Round(float64(s) * 32767)
	}
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// DecodeSample converts an int16 PCM sample back to float. See [EncodeSample]
// for why this is intentionally not the exact inverse.
func DecodeSample(v int16) float32 {
	return float32(v) / 32768.0
}

// EncodeFrame quantizes a block of float samples into a [Frame] at the given
// sample rate.
func EncodeFrame(samples []float32, sampleRate int) Frame {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(EncodeSample(s)))
	}
	return Frame{Data: data, SampleRate: sampleRate}
}

// DecodeFrame converts a frame's PCM payload to float samples. A trailing odd
// byte, should one ever appear, is ignored.
func DecodeFrame(f Frame) []float32 {
	out := make([]float32, f.Samples())
	for i := range out {
		out[i] = DecodeSample(int16(binary.LittleEndian.Uint16(f.Data[i*2:])))
	}
	return out
}
