package audio

// Window is the reusable per-channel buffer one analysis segment is
// assembled into. Capacity grows as needed and is kept across cycles; the
// valid region is tracked explicitly so a shrinking segment never exposes
// stale samples.
type Window struct {
	channels int
	data     [][]float32
	frames   int
}

// NewWindow creates a window for the given channel count with capacity for
// hintFrames frames per channel.
func NewWindow(channels, hintFrames int) *Window {
	w := &Window{
		channels: channels,
		data:     make([][]float32, channels),
	}
	for c := range w.data {
		w.data[c] = make([]float32, hintFrames)
	}
	return w
}

// Channels returns the channel count.
func (w *Window) Channels() int { return w.channels }

// Frames returns the valid frame count of the current segment.
func (w *Window) Frames() int { return w.frames }

// SetFrames marks the first n frames of each channel as the valid segment.
// It grows the underlying buffers when needed.
func (w *Window) SetFrames(n int) {
	w.Ensure(n)
	w.frames = n
}

// Ensure grows each channel buffer to hold at least n frames.
func (w *Window) Ensure(n int) {
	if n <= 0 || len(w.data) == 0 || len(w.data[0]) >= n {
		return
	}
	for c := range w.data {
		grown := make([]float32, n)
		copy(grown, w.data[c])
		w.data[c] = grown
	}
}

// Channel returns the valid samples of channel c.
func (w *Window) Channel(c int) []float32 { return w.data[c][:w.frames] }

func (w *Window) raw(n int) [][]float32 {
	out := make([][]float32, w.channels)
	for c := range w.data {
		out[c] = w.data[c][:n]
	}
	return out
}

// WriteSlices returns per-channel slices of length n for filling the window
// in place, growing buffers as required.
func (w *Window) WriteSlices(n int) [][]float32 {
	w.Ensure(n)
	return w.raw(n)
}

// CarryOverlap copies the last n valid frames of the previous segment to the
// front of each channel, establishing continuity with the next segment.
// n is clamped to the previous valid length. Returns the carried count.
func (w *Window) CarryOverlap(n int) int {
	if n > w.frames {
		n = w.frames
	}
	if n <= 0 {
		return 0
	}
	for c := range w.data {
		copy(w.data[c][:n], w.data[c][w.frames-n:w.frames])
	}
	return n
}

// Tail returns the last n valid frames of channel c (clamped).
func (w *Window) Tail(c, n int) []float32 {
	if n > w.frames {
		n = w.frames
	}
	return w.data[c][w.frames-n : w.frames]
}
