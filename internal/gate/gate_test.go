package gate

import (
	"math"
	"testing"
)

func sine(freq float64, amp float32, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

// alphaAt mirrors the coefficient computation inside HighPass.
func alphaAt(cutoff float32, rate int) float32 {
	rc := float32(1.0 / (2.0 * math.Pi * float64(cutoff)))
	dt := 1.0 / float32(rate)
	return dt / (rc + dt)
}

func TestHighPassRecurrence(t *testing.T) {
	in := []float32{0.5, -0.25, 0.75, 0.1, -0.6}
	got := make([]float32, len(in))
	copy(got, in)
	HighPass(got, 100, 16000)

	// The filter runs in place, so the recurrence reads the previous
	// output where it expects the previous input and collapses to plain
	// attenuation past the first sample. The voice threshold is tuned to
	// that output level.
	alpha := alphaAt(100, 16000)
	want := []float32{in[0]}
	for i := 1; i < len(in); i++ {
		want = append(want, alpha*in[i])
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHighPassAttenuatesDC(t *testing.T) {
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = 0.8
	}
	HighPass(samples, 100, 16000)

	// DC is scaled by the coefficient, not removed: the in-place filter
	// never builds the running response a true RC high-pass would.
	want := alphaAt(100, 16000) * 0.8
	if tail := samples[len(samples)-1]; math.Abs(float64(tail-want)) > 1e-6 {
		t.Errorf("DC tail = %v, want %v", tail, want)
	}
	if samples[0] != 0.8 {
		t.Errorf("first sample mutated: %v", samples[0])
	}
}

func TestHighPassGuards(t *testing.T) {
	HighPass(nil, 100, 16000)
	s := []float32{0.5, 0.25}
	HighPass(s, 0, 16000) // disabled cutoff leaves samples alone
	if s[1] != 0.25 {
		t.Errorf("zero cutoff mutated samples: %v", s)
	}
}

func TestSpeechDetectsVoiceOverSilence(t *testing.T) {
	if Speech(make([]float32, 1600), 16000, DefaultVADThreshold, DefaultFreqThreshold) {
		t.Error("silence classified as speech")
	}
	voiced := sine(200, 0.5, 16000, 1600)
	if !Speech(voiced, 16000, DefaultVADThreshold, DefaultFreqThreshold) {
		t.Error("200 Hz tone not classified as speech")
	}
	if Speech(nil, 16000, DefaultVADThreshold, DefaultFreqThreshold) {
		t.Error("empty window classified as speech")
	}
}

func TestSpeechMonotonicInAmplitude(t *testing.T) {
	// Scaling a window up must never flip speech to silence: the high-pass
	// is linear and the mean-amplitude check only grows with gain.
	base := sine(200, 0.02, 16000, 1600)
	for _, gain := range []float32{1, 2, 8, 100} {
		scaled := make([]float32, len(base))
		for i := range base {
			scaled[i] = base[i] * gain
		}
		ref := make([]float32, len(base))
		copy(ref, base)
		if Speech(ref, 16000, DefaultVADThreshold, DefaultFreqThreshold) &&
			!Speech(scaled, 16000, DefaultVADThreshold, DefaultFreqThreshold) {
			t.Errorf("gain %v flipped speech to silence", gain)
		}
	}
}

func TestSpeechFiltersInPlace(t *testing.T) {
	voiced := sine(200, 0.5, 16000, 1600)
	before := voiced[100]
	Speech(voiced, 16000, DefaultVADThreshold, DefaultFreqThreshold)
	if voiced[100] == before {
		t.Error("high-pass did not run in place")
	}

	unfiltered := sine(200, 0.5, 16000, 1600)
	before = unfiltered[100]
	Speech(unfiltered, 16000, DefaultVADThreshold, 0)
	if unfiltered[100] != before {
		t.Error("disabled high-pass still mutated the window")
	}
}

// quietLoudQuiet builds a window with low-energy edges around a loud
// interior, the shape the boundary heuristic looks for.
func quietLoudQuiet(edge, interior float32, w, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		amp := interior
		if i < w || i >= n-w {
			amp = edge
		}
		if i%2 == 0 {
			amp = -amp
		}
		out[i] = amp
	}
	return out
}

func TestWordBoundaryFound(t *testing.T) {
	const w = 800 // 50 ms at 16 kHz
	samples := quietLoudQuiet(0.01, 0.5, w, 4*w)
	if got := WordBoundary(samples, 16000, BoundaryThreshold); got != w {
		t.Errorf("WordBoundary = %d, want %d", got, w)
	}
}

func TestWordBoundaryLoudEdge(t *testing.T) {
	const w = 800
	samples := quietLoudQuiet(0.01, 0.5, w, 4*w)
	for i := len(samples) - w; i < len(samples); i++ {
		samples[i] = 0.4
	}
	if got := WordBoundary(samples, 16000, BoundaryThreshold); got != 0 {
		t.Errorf("loud trailing edge still yielded boundary %d", got)
	}
}

func TestWordBoundaryThresholdScales(t *testing.T) {
	const w = 800
	// Edge mean sits at 0.1 of the interior peak: inside a 0.25 ceiling,
	// outside a 0.05 one.
	samples := quietLoudQuiet(0.1, 1.0, w, 4*w)
	if got := WordBoundary(samples, 16000, 0.25); got != w {
		t.Errorf("threshold 0.25: got %d, want %d", got, w)
	}
	if got := WordBoundary(samples, 16000, 0.05); got != 0 {
		t.Errorf("threshold 0.05: got %d, want 0", got)
	}
}

func TestWordBoundaryShortWindow(t *testing.T) {
	const w = 800
	if got := WordBoundary(make([]float32, w), 16000, BoundaryThreshold); got != 0 {
		t.Errorf("window below two sub-windows yielded boundary %d", got)
	}
	// Exactly two sub-windows leaves no interior to compare against.
	if got := WordBoundary(make([]float32, 2*w), 16000, BoundaryThreshold); got != 0 {
		t.Errorf("window of exactly two sub-windows yielded boundary %d", got)
	}
	if got := WordBoundary(nil, 16000, BoundaryThreshold); got != 0 {
		t.Errorf("empty window yielded boundary %d", got)
	}
}
