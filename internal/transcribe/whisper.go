package transcribe

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// maxTokensPerWindow caps decoding per window; a filler is at most a couple
// of tokens.
const maxTokensPerWindow = 3

// WhisperEngine runs whisper.cpp inference over analysis windows.
type WhisperEngine struct {
	model    whisper.Model
	language string
	threads  uint
}

// NewWhisperEngine loads a whisper model from the given path.
// The caller must call Close() when done.
func NewWhisperEngine(modelPath, language string) (*WhisperEngine, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", modelPath, err)
	}
	if language == "" {
		language = "en"
	}
	return &WhisperEngine{
		model:    model,
		language: language,
		threads:  uint(min(8, runtime.NumCPU())),
	}, nil
}

// Close releases the whisper model resources.
func (e *WhisperEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Infer transcribes one mono 16kHz window and returns the first segment.
// Context creation failures and panics out of the bindings are reported as
// ErrEngineFault; a failed process call is transient and keeps the engine
// usable for the next window.
func (e *WhisperEngine) Infer(samples []float32) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEngineFault, r)
		}
	}()

	ctx, err := e.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("%w: create context: %v", ErrEngineFault, err)
	}
	// English-only models reject SetLanguage outright; their default params
	// already decode English.
	if e.model.IsMultilingual() {
		if err := ctx.SetLanguage(e.language); err != nil {
			return Result{}, fmt.Errorf("%w: set language %q: %v", ErrEngineFault, e.language, err)
		}
	}
	ctx.SetThreads(e.threads)
	ctx.SetMaxTokensPerSegment(maxTokensPerWindow)
	ctx.SetTokenTimestamps(false)
	ctx.SetInitialPrompt(InitialPrompt)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("transcribe: process window: %w", err)
	}

	// Windows are short enough that whisper rarely splits them; classification
	// reads the first segment only.
	seg, err := ctx.NextSegment()
	if err == io.EOF {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: next segment: %w", err)
	}

	var meanP float32
	if len(seg.Tokens) > 0 {
		var sum float32
		for _, tok := range seg.Tokens {
			sum += tok.P
		}
		meanP = sum / float32(len(seg.Tokens))
	}

	return Result{
		Text:  strings.TrimSpace(seg.Text),
		Start: seg.Start,
		End:   seg.End,
		MeanP: meanP,
	}, nil
}
