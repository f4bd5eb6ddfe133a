// Package audio provides the buffering primitives for the filter pipeline:
// a timestamped multi-channel sample queue and the reusable analysis window.
package audio

import (
	"fmt"
	"sync"
)

// PacketInfo describes one pushed audio packet. The queue keeps these in
// arrival order, parallel to the raw samples.
type PacketInfo struct {
	Frames    uint32
	Timestamp uint64 // source clock, nanoseconds
}

// Queue is a timestamped FIFO of multi-channel float32 audio. Samples and
// packet descriptors are kept frame-count-consistent: per channel, the sum
// of queued PacketInfo frames always equals the queued sample count.
//
// A single mutex guards both sides, so producers (real-time callback) and
// the consumer (worker) only ever hold it for a copy.
type Queue struct {
	mu       sync.Mutex
	channels int
	samples  [][]float32
	infos    []PacketInfo
}

// NewQueue creates a queue for the given channel count, pre-sizing each
// channel buffer to hintFrames so steady-state pushes do not allocate.
func NewQueue(channels, hintFrames int) *Queue {
	q := &Queue{
		channels: channels,
		samples:  make([][]float32, channels),
	}
	for c := range q.samples {
		q.samples[c] = make([]float32, 0, hintFrames)
	}
	q.infos = make([]PacketInfo, 0, 64)
	return q
}

// Channels returns the channel count the queue was built for.
func (q *Queue) Channels() int { return q.channels }

// Push appends frames samples from each channel and records one packet
// descriptor. Channel slices shorter than frames are an error; extra samples
// beyond frames are ignored.
func (q *Queue) Push(channels [][]float32, frames int, timestamp uint64) error {
	if frames <= 0 {
		return nil
	}
	if len(channels) < q.channels {
		return fmt.Errorf("audio: push got %d channels, queue has %d", len(channels), q.channels)
	}
	for c := 0; c < q.channels; c++ {
		if len(channels[c]) < frames {
			return fmt.Errorf("audio: channel %d has %d samples, packet claims %d frames", c, len(channels[c]), frames)
		}
	}

	q.mu.Lock()
	for c := 0; c < q.channels; c++ {
		q.samples[c] = append(q.samples[c], channels[c][:frames]...)
	}
	q.infos = append(q.infos, PacketInfo{Frames: uint32(frames), Timestamp: timestamp})
	q.mu.Unlock()
	return nil
}

// Frames returns the queued frame count per channel.
func (q *Queue) Frames() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channels == 0 {
		return 0
	}
	return len(q.samples[0])
}

// Packets returns the number of queued packet descriptors.
func (q *Queue) Packets() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.infos)
}

// Drain consumes whole packets from the front of the queue, accumulating
// their frame counts toward target, and copies that many frames per channel
// into dst starting at offset at. Packets are never split: a packet that
// would carry the total strictly past target is returned to the front of the
// queue with its full frame count and is what the next Drain observes first.
// An accumulation that lands exactly on target is consumed entirely. A lone
// packet already larger than target is consumed whole rather than starving
// the caller.
//
// Returns the consumed frame count and the timestamp of the first drained
// packet. Draining from an empty queue returns (0, 0).
func (q *Queue) Drain(target int, dst [][]float32, at int) (int, uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		consumed  int
		timestamp uint64
		popped    int
	)
	for popped < len(q.infos) {
		info := q.infos[popped]
		if popped == 0 {
			timestamp = info.Timestamp
		}
		next := consumed + int(info.Frames)
		if next > target && popped > 0 {
			// Push-back: leave this packet as the new head.
			break
		}
		consumed = next
		popped++
		if consumed >= target {
			break
		}
	}
	if popped == 0 {
		return 0, 0
	}
	q.infos = q.infos[:copy(q.infos, q.infos[popped:])]

	for c := 0; c < q.channels; c++ {
		copy(dst[c][at:at+consumed], q.samples[c][:consumed])
		q.samples[c] = q.samples[c][:copy(q.samples[c], q.samples[c][consumed:])]
	}
	return consumed, timestamp
}

// Pop removes the oldest packet and copies its samples into dst, one slice
// per channel, each of which must hold at least the packet's frame count.
// It returns the descriptor and false when the queue is empty. Pop never
// blocks.
func (q *Queue) Pop(dst [][]float32) (PacketInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.infos) == 0 {
		return PacketInfo{}, false
	}
	info := q.infos[0]
	q.infos = q.infos[:copy(q.infos, q.infos[1:])]

	n := int(info.Frames)
	for c := 0; c < q.channels; c++ {
		copy(dst[c][:n], q.samples[c][:n])
		q.samples[c] = q.samples[c][:copy(q.samples[c], q.samples[c][n:])]
	}
	return info, true
}

// PeekFrames reports the frame count of the oldest packet without consuming
// it, or 0 when the queue is empty.
func (q *Queue) PeekFrames() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.infos) == 0 {
		return 0
	}
	return int(q.infos[0].Frames)
}

// Reset drops all queued samples and descriptors, keeping capacity.
func (q *Queue) Reset() {
	q.mu.Lock()
	for c := range q.samples {
		q.samples[c] = q.samples[c][:0]
	}
	q.infos = q.infos[:0]
	q.mu.Unlock()
}
