// Package capture streams microphone audio into the detection pipeline. It
// owns the miniaudio context and capture device and forwards every callback
// packet to a sink with a sample-accurate timestamp.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/chaz8081/cleanstream/internal/audio"
)

// Sink receives deinterleaved capture packets.
type Sink interface {
	Push(channels [][]float32, frames int, timestamp uint64) error
}

// Capture reads the default microphone and feeds a Sink.
type Capture struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	channels   uint32
	sink       Sink
	log        *zap.Logger

	mu      sync.Mutex
	device  *malgo.Device
	running bool
	frames  uint64
	dropped uint64
}

// New creates a capture for the default device. Call Close when done.
func New(sampleRate, channels uint32, sink Sink, log *zap.Logger) (*Capture, error) {
	if sink == nil {
		return nil, fmt.Errorf("capture: nil sink")
	}
	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("capture: invalid format %d Hz, %d channels", sampleRate, channels)
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Capture{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		sink:       sink,
		log:        log,
	}, nil
}

// Start begins capturing from the default microphone.
func (c *Capture) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("capture: already running")
	}
	c.running = true
	c.frames = 0
	c.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = c.channels
	deviceCfg.SampleRate = c.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: c.onData,
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("starting capture device: %w", err)
	}

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()

	c.log.Info("capture started",
		zap.Uint32("sample_rate", c.sampleRate),
		zap.Uint32("channels", c.channels))
	return nil
}

// Stop halts the capture device. The context stays usable for another Start.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.running = false
}

// Running reports whether the device is currently capturing.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Dropped returns the number of packets the sink refused.
func (c *Capture) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close releases all audio resources.
func (c *Capture) Close() error {
	c.Stop()
	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample holds frameCount interleaved float32 frames.
func (c *Capture) onData(_, pSample []byte, frameCount uint32) {
	if frameCount == 0 {
		return
	}
	channels := audio.Deinterleave(audio.BytesToFloat32(pSample), int(c.channels))
	if len(channels) == 0 || len(channels[0]) == 0 {
		return
	}
	frames := len(channels[0])

	c.mu.Lock()
	ts := frameTimestamp(c.frames, c.sampleRate)
	c.frames += uint64(frames)
	c.mu.Unlock()

	if err := c.sink.Push(channels, frames, ts); err != nil {
		c.mu.Lock()
		c.dropped++
		n := c.dropped
		c.mu.Unlock()
		if n == 1 || n%100 == 0 {
			c.log.Warn("sink refused capture packet", zap.Uint64("dropped", n), zap.Error(err))
		}
	}
}

// frameTimestamp converts a running frame count to nanoseconds since the
// start of capture. Split to avoid overflowing during long sessions.
func frameTimestamp(frames uint64, rate uint32) uint64 {
	r := uint64(rate)
	sec := frames / r
	rem := frames % r
	return sec*uint64(time.Second) + rem*uint64(time.Second)/r
}
