// Package filter implements the streaming filler-word detection pipeline.
// Native audio pushed by the host is buffered into overlapping analysis
// windows, gated for speech, transcribed, and republished unchanged with a
// per-window filler classification. Detection runs on a background worker
// so Push and Pull stay cheap enough for a real-time audio path.
package filter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chaz8081/cleanstream/internal/audio"
	"github.com/chaz8081/cleanstream/internal/gate"
	"github.com/chaz8081/cleanstream/internal/metrics"
	"github.com/chaz8081/cleanstream/internal/resample"
	"github.com/chaz8081/cleanstream/internal/transcribe"
)

const (
	// windowMs is the analysis window length. Just over a second gives the
	// model enough context around a filler without adding much latency on
	// top of it.
	windowMs = 1010

	// engineSampleRate is the rate inference runs at.
	engineSampleRate = 16000

	// pollInterval is how long the worker waits when less than a full
	// window of input is buffered.
	pollInterval = 10 * time.Millisecond

	maxChannels = 2

	// DefaultFillerThreshold is the blank-probability cutoff used when
	// Options leaves the threshold unset.
	DefaultFillerThreshold = 0.75
)

// State describes where a Filter is in its lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateConfigured
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Options configures a Filter.
type Options struct {
	// SampleRate is the native rate of pushed audio in Hz.
	SampleRate int

	// Channels is the channel count of pushed audio, 1 or 2.
	Channels int

	// Engine runs speech inference on assembled windows. A nil engine
	// puts the filter in pass-through from the start.
	Engine transcribe.Engine

	// FillerThreshold is the minimum mean token probability for a blank
	// transcription to count as a filler. Zero selects
	// DefaultFillerThreshold.
	FillerThreshold float32

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics defaults to an unregistered set.
	Metrics *metrics.Metrics
}

// Filter is the streaming detection pipeline. The host pushes native audio
// packets and pulls them back out unchanged once the worker has classified
// the windows they fall into.
type Filter struct {
	log *zap.Logger
	met *metrics.Metrics

	sampleRate      int
	channels        int
	framesPerWindow int

	// routeMu orders Push routing against the switch to pass-through so a
	// late packet cannot overtake audio still buffered for analysis.
	routeMu sync.Mutex
	in      *audio.Queue
	out     *audio.Queue

	// Worker-only pipeline state.
	window        *audio.Window
	resampler     *resample.Resampler
	overlap       *overlapController
	overlapFrames int

	thresholdBits atomic.Uint32
	overlapNow    atomic.Uint64
	windows       atomic.Uint64
	fillers       atomic.Uint64
	silent        atomic.Uint64
	unbounded     atomic.Uint64

	// engineMu guards the engine for its whole lifetime. Inference runs
	// under it, so teardown cannot free the model mid-call.
	engineMu   sync.Mutex
	engine     transcribe.Engine
	engineGone atomic.Bool

	state atomic.Int32

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

// New builds a filter for the given native format. The worker does not run
// until Start.
func New(opts Options) (*Filter, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("filter: sample rate %d out of range", opts.SampleRate)
	}
	if opts.Channels < 1 || opts.Channels > maxChannels {
		return nil, fmt.Errorf("filter: channel count %d out of range", opts.Channels)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.New(nil)
	}
	rs, err := resample.New(opts.SampleRate, engineSampleRate)
	if err != nil {
		return nil, err
	}
	framesPerWindow := opts.SampleRate * windowMs / 1000
	f := &Filter{
		log:             log,
		met:             met,
		sampleRate:      opts.SampleRate,
		channels:        opts.Channels,
		framesPerWindow: framesPerWindow,
		in:              audio.NewQueue(opts.Channels, framesPerWindow),
		out:             audio.NewQueue(opts.Channels, framesPerWindow),
		window:          audio.NewWindow(opts.Channels, framesPerWindow),
		resampler:       rs,
		overlap:         newOverlapController(),
		engine:          opts.Engine,
	}
	f.overlapFrames = f.overlap.Frames(opts.SampleRate)
	f.overlapNow.Store(f.overlap.Millis())
	threshold := opts.FillerThreshold
	if threshold == 0 {
		threshold = DefaultFillerThreshold
	}
	f.SetFillerThreshold(threshold)
	f.engineGone.Store(opts.Engine == nil)
	f.state.Store(int32(StateConfigured))
	f.met.SetOverlap(f.overlap.Millis())
	return f, nil
}

// State returns the current lifecycle state.
func (f *Filter) State() State {
	return State(f.state.Load())
}

// WindowFrames returns the analysis window length in native frames.
func (f *Filter) WindowFrames() int {
	return f.framesPerWindow
}

// SetFillerThreshold updates the blank-probability threshold, clamped to
// [0, 1]. Safe to call while the filter is running.
func (f *Filter) SetFillerThreshold(v float32) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	f.thresholdBits.Store(math.Float32bits(v))
}

func (f *Filter) fillerThreshold() float32 {
	return math.Float32frombits(f.thresholdBits.Load())
}

// Start launches the background worker. Starting twice or after Close is
// an error.
func (f *Filter) Start() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if f.closed {
		return errors.New("filter: closed")
	}
	if f.done != nil {
		return errors.New("filter: already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	f.state.Store(int32(StateRunning))
	go f.run(ctx)
	return nil
}

// Push hands a packet of native audio to the filter. channels must carry
// at least frames samples each. When the engine is unavailable the packet
// is routed straight to the output so the stream keeps flowing.
func (f *Filter) Push(channels [][]float32, frames int, timestamp uint64) error {
	if f.State() == StateStopped {
		return errors.New("filter: stopped")
	}
	f.routeMu.Lock()
	defer f.routeMu.Unlock()
	if f.engineGone.Load() {
		return f.out.Push(channels, frames, timestamp)
	}
	return f.in.Push(channels, frames, timestamp)
}

// Pull removes the oldest processed packet, returning its channel data,
// frame count, and original timestamp. ok is false when nothing is ready.
// Pull expects a single consumer.
func (f *Filter) Pull() ([][]float32, int, uint64, bool) {
	n := f.out.PeekFrames()
	if n <= 0 {
		return nil, 0, 0, false
	}
	channels := make([][]float32, f.channels)
	for c := range channels {
		channels[c] = make([]float32, n)
	}
	info, ok := f.out.Pop(channels)
	if !ok {
		return nil, 0, 0, false
	}
	return channels, int(info.Frames), info.Timestamp, true
}

// Reconfigure resizes the pipeline for a new native format. Only valid
// before Start.
func (f *Filter) Reconfigure(sampleRate, channels int) error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if f.closed {
		return errors.New("filter: closed")
	}
	if f.done != nil {
		return errors.New("filter: already started")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("filter: sample rate %d out of range", sampleRate)
	}
	if channels < 1 || channels > maxChannels {
		return fmt.Errorf("filter: channel count %d out of range", channels)
	}
	rs, err := resample.New(sampleRate, engineSampleRate)
	if err != nil {
		return err
	}
	sameLayout := channels == f.channels
	f.sampleRate = sampleRate
	f.channels = channels
	f.framesPerWindow = sampleRate * windowMs / 1000
	if sameLayout {
		// Keep the warmed queue buffers, drop the stale audio.
		f.in.Reset()
		f.out.Reset()
	} else {
		f.in = audio.NewQueue(channels, f.framesPerWindow)
		f.out = audio.NewQueue(channels, f.framesPerWindow)
	}
	f.window = audio.NewWindow(channels, f.framesPerWindow)
	f.resampler = rs
	f.overlapFrames = f.overlap.Frames(sampleRate)
	return nil
}

// Close releases the engine, stops the worker, and waits for it to exit.
// The engine is released first so an in-flight inference finishes before
// the model goes away. Close is idempotent; the filter cannot be
// restarted.
func (f *Filter) Close() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	f.engineMu.Lock()
	var err error
	if f.engine != nil {
		err = f.engine.Close()
		f.engine = nil
	}
	f.engineGone.Store(true)
	f.engineMu.Unlock()

	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
	f.state.Store(int32(StateStopped))
	f.log.Info("filter closed")
	return err
}

// Stats is a point-in-time snapshot of filter activity.
type Stats struct {
	State            State
	OverlapMs        uint64
	InputFrames      int
	OutputFrames     int
	WindowsTotal     uint64
	FillerWindows    uint64
	SilentWindows    uint64
	UnboundedWindows uint64
}

// Stats snapshots queue depths, overlap, and window counters.
func (f *Filter) Stats() Stats {
	return Stats{
		State:            f.State(),
		OverlapMs:        f.overlapNow.Load(),
		InputFrames:      f.in.Frames(),
		OutputFrames:     f.out.Frames(),
		WindowsTotal:     f.windows.Load(),
		FillerWindows:    f.fillers.Load(),
		SilentWindows:    f.silent.Load(),
		UnboundedWindows: f.unbounded.Load(),
	}
}

func (f *Filter) run(ctx context.Context) {
	defer close(f.done)
	f.log.Info("filter worker started",
		zap.Int("sample_rate", f.sampleRate),
		zap.Int("channels", f.channels),
		zap.Int("frames_per_window", f.framesPerWindow))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			f.log.Info("filter worker exiting")
			return
		}
		fault := f.engineGone.Load()
		for !fault && f.in.Frames() >= f.framesPerWindow && ctx.Err() == nil {
			fault = f.processWindow()
		}
		if fault {
			f.enterPassthrough()
			f.state.Store(int32(StateDraining))
			f.log.Warn("inference engine gone, filter now passes audio through")
			return
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// enterPassthrough reroutes Push to the output queue, first moving audio
// already buffered for analysis across in arrival order. Holding routeMu
// over both steps keeps a packet pushed mid-transition from landing ahead
// of older frames.
func (f *Filter) enterPassthrough() {
	f.routeMu.Lock()
	defer f.routeMu.Unlock()
	f.engineGone.Store(true)
	if n := f.flushInput(); n > 0 {
		f.log.Info("flushed buffered input", zap.Int("frames", n))
	}
}

// flushInput moves every queued input packet to the output queue. Caller
// holds routeMu. Returns the frame count moved.
func (f *Filter) flushInput() int {
	moved := 0
	for {
		n := f.in.PeekFrames()
		if n <= 0 {
			return moved
		}
		channels := make([][]float32, f.channels)
		for c := range channels {
			channels[c] = make([]float32, n)
		}
		info, ok := f.in.Pop(channels)
		if !ok {
			return moved
		}
		if err := f.out.Push(channels, int(info.Frames), info.Timestamp); err != nil {
			f.log.Error("flush buffered input", zap.Error(err))
			return moved
		}
		moved += int(info.Frames)
	}
}

// processWindow assembles one analysis window, classifies it, republishes
// the fresh region, and adapts the overlap to the measured cost. It reports
// whether the engine faulted, after the window's own audio is out, so the
// worker can switch to pass-through.
func (f *Filter) processWindow() bool {
	carried := f.window.CarryOverlap(f.overlapFrames)
	target := f.framesPerWindow - carried
	need := carried + target
	if peek := f.in.PeekFrames(); peek > target {
		// A single packet larger than the window is consumed whole.
		need = carried + peek
	}
	consumed, startTS := f.in.Drain(target, f.window.WriteSlices(need), carried)
	if consumed == 0 {
		return false
	}
	total := carried + consumed
	f.window.SetFrames(total)

	f.log.Debug("assembled window",
		zap.Int("frames", total),
		zap.Int("new_frames", consumed),
		zap.Int("overlap_frames", carried),
		zap.Uint64("start_timestamp", startTS))

	start := time.Now()

	planes := make([][]float32, f.channels)
	for c := range planes {
		planes[c] = f.window.Channel(c)
	}
	mono := f.resampler.Process(planes, total)

	filler := false
	skipped := false
	fault := false
	if gate.Speech(mono, engineSampleRate, gate.DefaultVADThreshold, gate.DefaultFreqThreshold) {
		boundary := gate.WordBoundary(mono, engineSampleRate, gate.BoundaryThreshold)
		if boundary > 0 {
			f.log.Debug("word boundary found",
				zap.Int64("offset_ms", int64(boundary)*1000/engineSampleRate))
			var res transcribe.Result
			var ok bool
			if res, ok, fault = f.infer(mono); ok {
				filler = transcribe.IsFiller(res.Text, res.MeanP, f.fillerThreshold())
				f.log.Info("transcript",
					zap.String("start", transcribe.Timestamp(res.Start)),
					zap.String("end", transcribe.Timestamp(res.End)),
					zap.Float32("p", res.MeanP),
					zap.String("text", res.Text),
					zap.Bool("filler", filler))
			}
		} else {
			f.log.Debug("no word boundary, skipping inference")
			f.unbounded.Add(1)
			f.met.RecordNoBoundary()
		}
	} else {
		f.log.Debug("silence detected, skipping inference")
		skipped = true
		f.silent.Add(1)
		f.met.RecordSilent()
	}

	// Republish only the fresh region. The overlap head went out as the
	// tail of the previous window, so every input frame is published
	// exactly once with its original timestamp.
	fresh := make([][]float32, f.channels)
	for c := range fresh {
		fresh[c] = f.window.Tail(c, consumed)
	}
	if err := f.out.Push(fresh, consumed, startTS); err != nil {
		f.log.Error("publish window", zap.Error(err))
	}

	elapsed := time.Since(start)
	newData := framesDuration(consumed, f.sampleRate)
	f.overlap.Update(elapsed, newData, skipped)
	f.overlapFrames = f.overlap.Frames(f.sampleRate)
	f.overlapNow.Store(f.overlap.Millis())

	f.windows.Add(1)
	if filler {
		f.fillers.Add(1)
	}
	f.met.RecordWindow(elapsed.Seconds(), filler)
	f.met.SetOverlap(f.overlap.Millis())
	f.met.SetQueueDepths(f.in.Frames(), f.out.Frames())

	f.log.Debug("window processed",
		zap.Duration("took", elapsed),
		zap.Duration("new_data", newData),
		zap.Uint64("overlap_ms", f.overlap.Millis()))
	return fault
}

// infer runs one inference under the engine lock. A fault error closes the
// engine for good and is reported to the caller, which finishes publishing
// the window before the filter switches to pass-through; any other error is
// logged and the window treated as clean speech.
func (f *Filter) infer(samples []float32) (res transcribe.Result, ok, fault bool) {
	f.engineMu.Lock()
	defer f.engineMu.Unlock()
	if f.engine == nil {
		return transcribe.Result{}, false, false
	}
	start := time.Now()
	res, err := f.engine.Infer(samples)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		f.met.RecordInference(elapsed, true)
		if errors.Is(err, transcribe.ErrEngineFault) {
			f.log.Error("engine fault, disabling inference", zap.Error(err))
			f.met.RecordEngineFault()
			if cerr := f.engine.Close(); cerr != nil {
				f.log.Warn("engine close after fault", zap.Error(cerr))
			}
			f.engine = nil
			return transcribe.Result{}, false, true
		}
		f.log.Warn("inference failed", zap.Error(err))
		return transcribe.Result{}, false, false
	}
	f.met.RecordInference(elapsed, false)
	return res, true, false
}

func framesDuration(frames, rate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
