// Package metrics exposes Prometheus instrumentation for the filter
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the filter pipeline.
type Metrics struct {
	// Window pipeline metrics
	WindowsProcessed prometheus.Counter
	WindowsSilent    prometheus.Counter
	WindowsUnbounded prometheus.Counter
	FillerWindows    prometheus.Counter
	WindowDuration   prometheus.Histogram

	// Inference metrics
	InferenceCalls    prometheus.Counter
	InferenceFailures prometheus.Counter
	InferenceDuration prometheus.Histogram
	EngineFaults      prometheus.Counter

	// Buffer and control-loop state
	OverlapMs         prometheus.Gauge
	InputQueueFrames  prometheus.Gauge
	OutputQueueFrames prometheus.Gauge
}

// New creates all pipeline metrics and registers them with reg. A nil reg
// leaves the metrics unregistered, which keeps them usable as plain
// counters in tests and embedded setups.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WindowsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanstream_windows_processed_total",
			Help: "Total number of analysis windows assembled and processed",
		}),
		WindowsSilent: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanstream_windows_silent_total",
			Help: "Total number of windows skipped by voice activity detection",
		}),
		WindowsUnbounded: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanstream_windows_no_boundary_total",
			Help: "Total number of voiced windows without a word boundary",
		}),
		FillerWindows: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanstream_filler_windows_total",
			Help: "Total number of windows classified as filler speech",
		}),
		WindowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cleanstream_window_processing_duration_seconds",
			Help:    "Wall-clock time spent processing one analysis window",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		InferenceCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanstream_inference_calls_total",
			Help: "Total number of speech inference invocations",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanstream_inference_failures_total",
			Help: "Total number of transient inference failures",
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cleanstream_inference_duration_seconds",
			Help:    "Duration of speech inference invocations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),
		EngineFaults: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanstream_engine_faults_total",
			Help: "Total number of unrecoverable engine faults",
		}),
		OverlapMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cleanstream_overlap_ms",
			Help: "Current adaptive window overlap in milliseconds",
		}),
		InputQueueFrames: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cleanstream_input_queue_frames",
			Help: "Frames currently buffered in the input queue",
		}),
		OutputQueueFrames: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cleanstream_output_queue_frames",
			Help: "Frames currently buffered in the output queue",
		}),
	}
}

// RecordWindow records one completed worker cycle.
func (m *Metrics) RecordWindow(durationSeconds float64, filler bool) {
	m.WindowsProcessed.Inc()
	m.WindowDuration.Observe(durationSeconds)
	if filler {
		m.FillerWindows.Inc()
	}
}

// RecordSilent counts a window skipped by the voice activity check.
func (m *Metrics) RecordSilent() {
	m.WindowsSilent.Inc()
}

// RecordNoBoundary counts a voiced window without a word boundary.
func (m *Metrics) RecordNoBoundary() {
	m.WindowsUnbounded.Inc()
}

// RecordInference records one inference invocation.
func (m *Metrics) RecordInference(durationSeconds float64, failed bool) {
	m.InferenceCalls.Inc()
	m.InferenceDuration.Observe(durationSeconds)
	if failed {
		m.InferenceFailures.Inc()
	}
}

// RecordEngineFault counts an unrecoverable engine fault.
func (m *Metrics) RecordEngineFault() {
	m.EngineFaults.Inc()
}

// SetOverlap publishes the controller's current overlap.
func (m *Metrics) SetOverlap(ms uint64) {
	m.OverlapMs.Set(float64(ms))
}

// SetQueueDepths publishes input and output buffer occupancy.
func (m *Metrics) SetQueueDepths(in, out int) {
	m.InputQueueFrames.Set(float64(in))
	m.OutputQueueFrames.Set(float64(out))
}
