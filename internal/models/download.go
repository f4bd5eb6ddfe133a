package models

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chaz8081/cleanstream/internal/config"
)

const (
	whisperModelURL  = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin"
	whisperModelName = "ggml-tiny.en.bin"
)

// WhisperModelPath returns where DownloadWhisper installs the model.
func WhisperModelPath() string {
	return filepath.Join(config.DefaultModelsDir(), whisperModelName)
}

// DownloadWhisper downloads the whisper ggml model to the default models
// directory. It shows download progress on stdout and is a no-op when the
// model is already present.
func DownloadWhisper() error {
	modelsDir := config.DefaultModelsDir()
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	destPath := filepath.Join(modelsDir, whisperModelName)

	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Printf("  Whisper model already exists: %s (%.0f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return nil
	}

	fmt.Printf("  Downloading whisper model from HuggingFace...\n")
	fmt.Printf("  URL: %s\n", whisperModelURL)
	fmt.Printf("  Destination: %s\n", destPath)

	resp, err := http.Get(whisperModelURL) //nolint:gosec // URL is a compile-time constant
	if err != nil {
		return fmt.Errorf("downloading whisper model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	pr := &progressWriter{
		writer: f,
		total:  resp.ContentLength,
		label:  whisperModelName,
	}

	written, err := io.Copy(pr, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing model file: %w", err)
	}

	fmt.Printf("\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving model file: %w", err)
	}

	return nil
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Printf("\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Printf("\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
