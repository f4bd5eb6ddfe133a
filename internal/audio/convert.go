package audio

import (
	"encoding/binary"
	"math"
)

// BytesToFloat32 reinterprets little-endian IEEE 754 sample bytes as
// float32 samples. Trailing bytes short of a full sample are dropped.
func BytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

// PCM16ToFloat32 converts signed 16-bit PCM values to float32 in [-1, 1).
func PCM16ToFloat32(src []int) []float32 {
	out := make([]float32, len(src))
	for i, s := range src {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Deinterleave splits interleaved samples into per-channel planes.
func Deinterleave(src []float32, channels int) [][]float32 {
	if channels <= 0 {
		return nil
	}
	frames := len(src) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out[c][i] = src[i*channels+c]
		}
	}
	return out
}
