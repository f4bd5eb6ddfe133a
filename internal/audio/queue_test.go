package audio

import "testing"

// ramp returns n samples counting up from start, handy for checking that
// drained audio stays contiguous across packet boundaries.
func ramp(start float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func pushRamp(t *testing.T, q *Queue, start float32, frames int, ts uint64) {
	t.Helper()
	chans := make([][]float32, q.Channels())
	for c := range chans {
		chans[c] = ramp(start+float32(c)*1000, frames)
	}
	if err := q.Push(chans, frames, ts); err != nil {
		t.Fatalf("push %d frames: %v", frames, err)
	}
}

func TestQueuePushValidation(t *testing.T) {
	q := NewQueue(2, 64)

	if err := q.Push([][]float32{make([]float32, 8)}, 8, 0); err == nil {
		t.Error("expected error pushing 1 channel into 2-channel queue")
	}
	if err := q.Push([][]float32{make([]float32, 8), make([]float32, 4)}, 8, 0); err == nil {
		t.Error("expected error when a channel is shorter than the claimed frames")
	}
	if err := q.Push(nil, 0, 0); err != nil {
		t.Errorf("zero-frame push should be a no-op, got %v", err)
	}
	if q.Frames() != 0 || q.Packets() != 0 {
		t.Errorf("failed pushes must not enqueue anything, have %d frames / %d packets", q.Frames(), q.Packets())
	}
}

func TestQueueAccounting(t *testing.T) {
	q := NewQueue(2, 64)
	pushRamp(t, q, 0, 160, 100)
	pushRamp(t, q, 160, 240, 200)

	if got := q.Frames(); got != 400 {
		t.Errorf("Frames() = %d, want 400", got)
	}
	if got := q.Packets(); got != 2 {
		t.Errorf("Packets() = %d, want 2", got)
	}
	if got := q.PeekFrames(); got != 160 {
		t.Errorf("PeekFrames() = %d, want 160", got)
	}
}

func TestQueueDrainWholePacketsOnly(t *testing.T) {
	q := NewQueue(1, 512)
	pushRamp(t, q, 0, 160, 100)
	pushRamp(t, q, 160, 160, 200)
	pushRamp(t, q, 320, 160, 300)

	dst := [][]float32{make([]float32, 1024)}
	n, ts := q.Drain(400, dst, 0)
	if n != 320 {
		t.Fatalf("Drain(400) consumed %d frames, want 320 (third packet pushed back)", n)
	}
	if ts != 100 {
		t.Errorf("drain timestamp = %d, want 100", ts)
	}
	for i := 0; i < n; i++ {
		if dst[0][i] != float32(i) {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[0][i], float32(i))
		}
	}

	// The pushed-back packet is the head of the next drain.
	if got := q.PeekFrames(); got != 160 {
		t.Fatalf("pushed-back head has %d frames, want 160", got)
	}
	n, ts = q.Drain(160, dst, 0)
	if n != 160 || ts != 300 {
		t.Fatalf("second drain = (%d, %d), want (160, 300)", n, ts)
	}
	if dst[0][0] != 320 {
		t.Errorf("second drain must resume at sample 320, got %v", dst[0][0])
	}
}

func TestQueueDrainExactTarget(t *testing.T) {
	q := NewQueue(1, 512)
	pushRamp(t, q, 0, 160, 100)
	pushRamp(t, q, 160, 240, 200)

	dst := [][]float32{make([]float32, 1024)}
	n, ts := q.Drain(400, dst, 0)
	if n != 400 || ts != 100 {
		t.Fatalf("exact-hit drain = (%d, %d), want (400, 100)", n, ts)
	}
	if q.Packets() != 0 || q.Frames() != 0 {
		t.Errorf("queue should be empty after exact-hit drain, have %d packets / %d frames", q.Packets(), q.Frames())
	}
}

func TestQueueDrainOversizedHead(t *testing.T) {
	q := NewQueue(1, 512)
	pushRamp(t, q, 0, 500, 100)

	dst := [][]float32{make([]float32, 1024)}
	n, _ := q.Drain(300, dst, 0)
	if n != 500 {
		t.Fatalf("lone oversized packet: consumed %d frames, want all 500", n)
	}
	if q.Frames() != 0 {
		t.Errorf("queue should be empty, has %d frames", q.Frames())
	}
}

func TestQueueDrainEmpty(t *testing.T) {
	q := NewQueue(1, 16)
	dst := [][]float32{make([]float32, 16)}
	if n, ts := q.Drain(100, dst, 0); n != 0 || ts != 0 {
		t.Errorf("empty drain = (%d, %d), want (0, 0)", n, ts)
	}
}

func TestQueueDrainAtOffset(t *testing.T) {
	q := NewQueue(1, 64)
	pushRamp(t, q, 0, 8, 100)

	dst := [][]float32{make([]float32, 16)}
	dst[0][0], dst[0][1] = -1, -2
	n, _ := q.Drain(8, dst, 2)
	if n != 8 {
		t.Fatalf("Drain consumed %d frames, want 8", n)
	}
	if dst[0][0] != -1 || dst[0][1] != -2 {
		t.Error("drain at offset overwrote the carried prefix")
	}
	if dst[0][2] != 0 || dst[0][9] != 7 {
		t.Errorf("drained samples landed wrong: got [%v..%v]", dst[0][2], dst[0][9])
	}
}

func TestQueuePopOrder(t *testing.T) {
	q := NewQueue(2, 64)
	pushRamp(t, q, 0, 4, 100)
	pushRamp(t, q, 4, 6, 200)

	dst := [][]float32{make([]float32, 8), make([]float32, 8)}
	info, ok := q.Pop(dst)
	if !ok || info.Frames != 4 || info.Timestamp != 100 {
		t.Fatalf("first pop = (%+v, %v), want frames 4 ts 100", info, ok)
	}
	if dst[1][0] != 1000 {
		t.Errorf("second channel sample = %v, want 1000", dst[1][0])
	}
	info, ok = q.Pop(dst)
	if !ok || info.Frames != 6 || info.Timestamp != 200 {
		t.Fatalf("second pop = (%+v, %v), want frames 6 ts 200", info, ok)
	}
	if dst[0][0] != 4 {
		t.Errorf("second pop sample = %v, want 4", dst[0][0])
	}
	if _, ok := q.Pop(dst); ok {
		t.Error("pop from empty queue reported ok")
	}
}

func TestQueueReset(t *testing.T) {
	q := NewQueue(1, 64)
	pushRamp(t, q, 0, 32, 100)
	q.Reset()
	if q.Frames() != 0 || q.Packets() != 0 {
		t.Errorf("reset left %d frames / %d packets", q.Frames(), q.Packets())
	}
	pushRamp(t, q, 0, 8, 200)
	if q.Frames() != 8 {
		t.Errorf("push after reset: %d frames, want 8", q.Frames())
	}
}
