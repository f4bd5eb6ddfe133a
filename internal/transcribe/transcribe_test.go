package transcribe

import (
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/cleanstream/internal/config"
)

func TestIsFiller(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		meanP     float32
		threshold float32
		want      bool
	}{
		{"disfluency with comma", "um, hmm", 0.9, 0.75, true},
		{"plain speech", "hello world", 0.99, 0.75, false},
		{"confident blank audio", "[BLANK_AUDIO]", 0.9, 0.75, true},
		{"unconfident blank audio", "[BLANK_AUDIO]", 0.5, 0.75, false},
		{"blank probability not strictly above", "[BLANK_AUDIO]", 0.75, 0.75, false},
		{"upper case disfluency", "UH, I MEAN", 0.1, 0.75, true},
		{"trailing period", "uh.", 0.1, 0.75, true},
		{"substring inside a word", "umbrella ahead", 0.99, 0.75, false},
		{"empty transcript", "", 0, 0.75, false},
		{"eh variant", "Eh, well", 0.2, 0.75, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFiller(tt.text, tt.meanP, tt.threshold); got != tt.want {
				t.Errorf("IsFiller(%q, %v, %v) = %v, want %v", tt.text, tt.meanP, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00.000"},
		{10 * time.Millisecond, "00:00.010"},
		{990 * time.Millisecond, "00:00.990"},
		{time.Second, "00:01.000"},
		{83*time.Second + 450*time.Millisecond, "01:23.450"},
		{10 * time.Minute, "10:00.000"},
	}
	for _, tt := range tests {
		if got := Timestamp(tt.d); got != tt.want {
			t.Errorf("Timestamp(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(&config.EngineConfig{Backend: "google"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "unknown backend") {
		t.Errorf("error %q does not name the unknown backend", err)
	}
}
