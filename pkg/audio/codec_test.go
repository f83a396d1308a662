package audio_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/reporecon/pkg/audio"
)

func TestEncodeSample_Extremes(t *testing.T) {
	cases := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full negative", -1.0, -32768},
		{"full positive", 1.0, 32767},
		{"clamp below", -1.5, -32768},
		{"clamp above", 1.5, 32767},
		{"half negative", -0.5, -16384},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := audio.EncodeSample(tc.in); got != tc.want {
				t.Errorf("EncodeSample(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

// TestRoundTrip_Bounded documents the accepted encode/decode asymmetry:
// decoding always divides by 32768 while positive samples encode with 32767,
// so the round trip may differ from the input. The scale mismatch contributes
// up to |x|/32768 and rounding up to half a step, so the drift stays within
// 1.5 quantization steps across the full range and within one step for
// |x| ≤ 0.5.
func TestRoundTrip_Bounded(t *testing.T) {
	const step = 1.0 / 32768.0
	for i := -1000; i <= 1000; i++ {
		x := float32(i) / 1000.0
		got := audio.DecodeSample(audio.EncodeSample(x))
		diff := math.Abs(float64(got - x))
		if diff > 1.5*step {
			t.Fatalf("round trip of %v drifted by %v (> %v)", x, diff, 1.5*step)
		}
		if math.Abs(float64(x)) <= 0.5 && diff > step {
			t.Fatalf("round trip of %v drifted by %v (> one step)", x, diff)
		}
	}
}

func TestEncodeFrame_LittleEndian(t *testing.T) {
	f := audio.EncodeFrame([]float32{-1.0, 0, 1.0}, 24000)
	if f.Samples() != 3 {
		t.Fatalf("Samples() = %d, want 3", f.Samples())
	}
	want := []int16{-32768, 0, 32767}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
		if got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestFrameDuration_DerivesFromLength(t *testing.T) {
	// 320 samples at 24 kHz — deliberately not a 20 ms multiple of the rate.
	f := audio.Frame{Data: make([]byte, 320*2), SampleRate: 24000}
	want := time.Duration(320) * time.Second / 24000
	if got := f.Duration(); got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}

	if got := (audio.Frame{Data: []byte{0, 0}}).Duration(); got != 0 {
		t.Errorf("Duration() with zero rate = %v, want 0", got)
	}
}
