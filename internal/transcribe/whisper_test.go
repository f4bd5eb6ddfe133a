package transcribe

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"

	"github.com/chaz8081/cleanstream/internal/audio"
)

// whisperModelPath resolves the path to the whisper model relative to the
// project root. Tests that need it are skipped when it is not present.
func whisperModelPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join("..", "..", "models", "ggml-tiny.en.bin")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model not found at %s (run 'make model' first): %v", path, err)
	}
	return path
}

func TestNewWhisperEngine(t *testing.T) {
	path := whisperModelPath(t)

	eng, err := NewWhisperEngine(path, "en")
	if err != nil {
		t.Fatalf("NewWhisperEngine(%q) returned error: %v", path, err)
	}
	if eng == nil {
		t.Fatal("NewWhisperEngine returned nil without error")
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
}

func TestNewWhisperEngineBadPath(t *testing.T) {
	_, err := NewWhisperEngine("/nonexistent/model.bin", "en")
	if err == nil {
		t.Fatal("NewWhisperEngine with bad path should return error")
	}
	if errors.Is(err, ErrEngineFault) {
		t.Error("a missing model is a configuration error, not an engine fault")
	}
}

func TestWhisperInferSilence(t *testing.T) {
	path := whisperModelPath(t)

	eng, err := NewWhisperEngine(path, "en")
	if err != nil {
		t.Fatalf("NewWhisperEngine: %v", err)
	}
	defer func() { _ = eng.Close() }()

	// One analysis window of silence must not error; whisper typically
	// reports it as a blank-audio annotation.
	silence := make([]float32, 16160)
	res, err := eng.Infer(silence)
	if err != nil {
		t.Fatalf("Infer on silence returned error: %v", err)
	}
	if res.MeanP < 0 || res.MeanP > 1 {
		t.Errorf("mean token probability %v outside [0, 1]", res.MeanP)
	}
	if res.Text != "" && !strings.Contains(strings.ToLower(res.Text), "[bl") {
		t.Logf("silence transcribed as %q", res.Text)
	}
}

func TestWhisperInferFiller(t *testing.T) {
	path := whisperModelPath(t)

	eng, err := NewWhisperEngine(path, "en")
	if err != nil {
		t.Fatalf("NewWhisperEngine: %v", err)
	}
	defer func() { _ = eng.Close() }()

	wavPath := filepath.Join("testdata", "um.wav")
	f, err := os.Open(wavPath)
	if err != nil {
		t.Skipf("filler sample not found at %s: %v", wavPath, err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode %s: %v", wavPath, err)
	}
	samples := audio.PCM16ToFloat32(buf.Data)

	res, err := eng.Infer(samples)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if !IsFiller(res.Text, res.MeanP, 0.75) {
		t.Errorf("expected filler classification for %q (p=%.3f)", res.Text, res.MeanP)
	}
}
