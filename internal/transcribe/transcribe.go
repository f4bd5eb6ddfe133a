// Package transcribe runs speech inference over analysis windows and
// classifies filler speech ("um", "uh", ...) from the transcript.
//
// Supported backends:
//   - whisper: whisper.cpp via Go bindings (default)
package transcribe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chaz8081/cleanstream/internal/config"
)

// ErrEngineFault marks an unrecoverable engine failure. The owner must tear
// the engine down and treat inference as unavailable from then on; transient
// inference errors are returned as ordinary errors instead.
var ErrEngineFault = errors.New("transcribe: engine fault")

// InitialPrompt biases recognition toward disfluencies so short filler
// utterances are transcribed rather than dropped.
const InitialPrompt = "hmm, mm, mhm, mmm, uhm, Uh, um, Uhh, Umm, ehm, uuuh, Ahh, ahm, eh, Ehh, ehh,"

// Result is one inference outcome: the first transcript segment with its
// time range and the mean probability across its tokens.
type Result struct {
	Text  string
	Start time.Duration
	End   time.Duration
	MeanP float32
}

// Engine converts one mono 16 kHz window into a Result. Calls are
// synchronous and may block for the full inference duration; serialization
// against teardown is the caller's responsibility.
type Engine interface {
	// Infer transcribes mono 16kHz float32 audio samples. An error wrapping
	// ErrEngineFault means the engine must not be called again.
	Infer(samples []float32) (Result, error)
	// Close releases backend resources.
	Close() error
}

// New creates an Engine based on the config backend setting.
func New(cfg *config.EngineConfig) (Engine, error) {
	switch cfg.Backend {
	case "whisper", "":
		return NewWhisperEngine(cfg.ModelPath, cfg.Language)
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: whisper)", cfg.Backend)
	}
}

// fillerMarkers are matched as substrings against the lower-cased
// transcript. Each carries its trailing punctuation so "umbrella" or
// "ahead" never match.
var fillerMarkers = []string{"uh,", "um,", "um.", "ah.", "ah,", "eh.", "eh,", "uh."}

// blankMarker prefixes whisper's blank-audio annotations such as
// "[BLANK_AUDIO]"; those only count as filler when the model was confident.
const blankMarker = "[bl"

// IsFiller classifies a transcript as filler speech: either a confident
// blank-audio annotation (mean token probability above pThreshold) or any
// known disfluency substring.
func IsFiller(text string, meanP, pThreshold float32) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, blankMarker) && meanP > pThreshold {
		return true
	}
	for _, marker := range fillerMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Timestamp renders an offset as MM:SS.mmm for log lines.
func Timestamp(d time.Duration) string {
	ms := d.Milliseconds()
	minutes := ms / 60000
	sec := ms % 60000 / 1000
	frac := ms % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, sec, frac)
}
