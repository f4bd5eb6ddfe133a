package filter

import "time"

// Overlap controller bounds. The overlap starts generous so early windows
// share plenty of context, then adapts to however fast inference actually
// runs on this machine.
const (
	initialOverlapMs = 340
	minOverlapMs     = 100
	overlapStepMs    = 10
	overlapMaxShare  = 0.75
)

// overlapController adapts the window overlap to the measured processing
// speed. When a cycle takes longer than the real-time duration of the new
// audio it consumed, the overlap shrinks by one step so the next window
// carries less redundant work. When processing keeps up and inference
// actually ran, the overlap grows by one step, capped at a share of the
// new-audio duration so the pipeline can never spend most of a window
// re-transcribing old samples. Cycles that skipped inference leave the
// overlap untouched.
type overlapController struct {
	ms uint64
}

func newOverlapController() *overlapController {
	return &overlapController{ms: initialOverlapMs}
}

// Millis returns the current overlap duration in milliseconds.
func (c *overlapController) Millis() uint64 {
	return c.ms
}

// Frames converts the current overlap to a frame count at sampleRate.
func (c *overlapController) Frames(sampleRate int) int {
	return int(c.ms) * sampleRate / 1000
}

// Update applies one cycle's measurement and returns the new overlap in
// milliseconds. processing is the wall-clock time the cycle took, newData
// the real-time duration of the fresh (non-overlap) audio it consumed, and
// skipped reports whether the cycle bypassed inference.
func (c *overlapController) Update(processing, newData time.Duration, skipped bool) uint64 {
	switch {
	case processing > newData:
		if c.ms < minOverlapMs+overlapStepMs {
			c.ms = minOverlapMs
		} else {
			c.ms -= overlapStepMs
		}
	case !skipped:
		limit := uint64(overlapMaxShare * float64(newData.Milliseconds()))
		if limit < minOverlapMs {
			limit = minOverlapMs
		}
		if c.ms+overlapStepMs < limit {
			c.ms += overlapStepMs
		} else {
			c.ms = limit
		}
	}
	return c.ms
}
