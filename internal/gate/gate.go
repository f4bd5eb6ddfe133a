// Package gate decides whether an assembled window is worth the cost of
// speech inference: an energy-based voice activity check and a word-boundary
// heuristic that avoids cutting inference mid-word.
package gate

import "math"

const (
	// DefaultVADThreshold is the minimum mean absolute amplitude for a
	// window to count as speech.
	DefaultVADThreshold = 0.0001

	// DefaultFreqThreshold is the high-pass cutoff in Hz applied before
	// the energy check. Zero disables the filter.
	DefaultFreqThreshold = 100.0

	// BoundaryThreshold scales the interior peak into the ceiling both
	// edge sub-windows must stay under for a word boundary.
	BoundaryThreshold = 0.25

	// boundaryWindowMs is the edge sub-window length.
	boundaryWindowMs = 50
)

// HighPass applies a single-pole high-pass filter in place. The coefficient
// follows from the RC constant of the cutoff frequency and the sample period.
//
// The in-place update reads the previous output where the recurrence expects
// the previous input, so past the first sample the chain collapses to scaling
// by the coefficient. whisper.cpp's streaming VAD ships the same filter, and
// DefaultVADThreshold is calibrated against its output level, so the shape is
// kept.
func HighPass(samples []float32, cutoff float32, sampleRate int) {
	if len(samples) == 0 || cutoff <= 0 || sampleRate <= 0 {
		return
	}
	rc := float32(1.0 / (2.0 * math.Pi * float64(cutoff)))
	dt := 1.0 / float32(sampleRate)
	alpha := dt / (rc + dt)

	y := samples[0]
	for i := 1; i < len(samples); i++ {
		y = alpha * (y + samples[i] - samples[i-1])
		samples[i] = y
	}
}

// Speech reports whether the window contains voice activity: mean absolute
// amplitude at or above vadThold after an optional high-pass at freqThold Hz.
// The high-pass runs in place, so downstream stages see the filtered signal.
func Speech(samples []float32, sampleRate int, vadThold, freqThold float32) bool {
	if len(samples) == 0 {
		return false
	}
	if freqThold > 0 {
		HighPass(samples, freqThold, sampleRate)
	}
	return meanAbs(samples) >= vadThold
}

// WordBoundary scans the window for a low-energy edge pair: the mean absolute
// amplitude of the first and last 50 ms sub-windows must both fall below
// BoundaryThreshold times the interior peak. It returns the boundary offset
// in frames (the first sub-window length), or 0 when no boundary exists.
//
// Windows shorter than two sub-windows cannot hold a boundary and return 0.
func WordBoundary(samples []float32, sampleRate int, thold float32) int {
	window := sampleRate * boundaryWindowMs / 1000
	if window <= 0 || len(samples) < 2*window {
		return 0
	}

	first := meanAbs(samples[:window])
	last := meanAbs(samples[len(samples)-window:])
	peak := peakAbs(samples[window : len(samples)-window])

	ceiling := peak * thold
	if first < ceiling && last < ceiling {
		return window
	}
	return 0
}

func meanAbs(samples []float32) float32 {
	var sum float32
	for _, s := range samples {
		if s < 0 {
			sum -= s
		} else {
			sum += s
		}
	}
	return sum / float32(len(samples))
}

func peakAbs(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
