package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordWindow(0.1, true)
	m.SetOverlap(340)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
}

func TestNewWithNilRegistererIsUsable(t *testing.T) {
	m := New(nil)
	m.RecordWindow(0.05, false)
	if got := testutil.ToFloat64(m.WindowsProcessed); got != 1 {
		t.Fatalf("WindowsProcessed = %v, want 1", got)
	}
}

func TestRecordWindow(t *testing.T) {
	m := New(nil)
	m.RecordWindow(0.1, false)
	m.RecordWindow(0.2, true)

	if got := testutil.ToFloat64(m.WindowsProcessed); got != 2 {
		t.Errorf("WindowsProcessed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FillerWindows); got != 1 {
		t.Errorf("FillerWindows = %v, want 1", got)
	}
}

func TestRecordInference(t *testing.T) {
	m := New(nil)
	m.RecordInference(0.5, false)
	m.RecordInference(0.5, true)

	if got := testutil.ToFloat64(m.InferenceCalls); got != 2 {
		t.Errorf("InferenceCalls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InferenceFailures); got != 1 {
		t.Errorf("InferenceFailures = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m := New(nil)
	m.SetOverlap(250)
	m.SetQueueDepths(16160, 320)

	if got := testutil.ToFloat64(m.OverlapMs); got != 250 {
		t.Errorf("OverlapMs = %v, want 250", got)
	}
	if got := testutil.ToFloat64(m.InputQueueFrames); got != 16160 {
		t.Errorf("InputQueueFrames = %v, want 16160", got)
	}
	if got := testutil.ToFloat64(m.OutputQueueFrames); got != 320 {
		t.Errorf("OutputQueueFrames = %v, want 320", got)
	}
}
