// Package resample converts multi-channel audio at an arbitrary host rate
// into the mono 16 kHz stream the speech model consumes.
package resample

import "fmt"

// Resampler mixes any number of channels down to mono and rate-converts by
// linear interpolation. Output buffers are reused across calls, so a result
// is only valid until the next Process.
type Resampler struct {
	srcRate int
	dstRate int
	mono    []float32
	out     []float32
}

// New creates a resampler for the given rate pair.
func New(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rates %d -> %d", srcRate, dstRate)
	}
	return &Resampler{srcRate: srcRate, dstRate: dstRate}, nil
}

// OutFrames returns the number of output frames Process produces for the
// given input frame count.
func (r *Resampler) OutFrames(frames int) int {
	if frames <= 0 {
		return 0
	}
	if r.srcRate == r.dstRate {
		return frames
	}
	return frames * r.dstRate / r.srcRate
}

// Process mixes the first frames samples of each channel down to mono and
// converts them to the destination rate. The returned slice is owned by the
// resampler and reused on the next call.
func (r *Resampler) Process(channels [][]float32, frames int) []float32 {
	mono := r.mixdown(channels, frames)
	if r.srcRate == r.dstRate {
		return mono
	}

	outFrames := r.OutFrames(frames)
	r.out = grow(r.out, outFrames)
	out := r.out[:outFrames]

	// Fractional source position per output sample, clamped at the edges.
	step := float64(r.srcRate) / float64(r.dstRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := mono[clampIndex(idx, frames)]
		s1 := mono[clampIndex(idx+1, frames)]
		out[i] = s0 + frac*(s1-s0)
	}
	return out
}

func (r *Resampler) mixdown(channels [][]float32, frames int) []float32 {
	r.mono = grow(r.mono, frames)
	mono := r.mono[:frames]

	if len(channels) == 0 {
		for i := range mono {
			mono[i] = 0
		}
		return mono
	}
	if len(channels) == 1 {
		copy(mono, channels[0][:frames])
		return mono
	}
	scale := 1 / float32(len(channels))
	for i := 0; i < frames; i++ {
		var sum float32
		for c := range channels {
			sum += channels[c][i]
		}
		mono[i] = sum * scale
	}
	return mono
}

func clampIndex(i, n int) int {
	if i >= n {
		return n - 1
	}
	return i
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}
