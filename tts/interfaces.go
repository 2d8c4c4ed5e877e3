package tts

import (
	"context"

	"github.com/dgnsrekt/batchtts/tts/audio"
)

// Engine defines the synthesis engine driven by the batching core.
//
// An engine holds mutable generation state: Configure replaces the active
// parameter set and Generate synthesizes with whatever set is active. Engines
// are not assumed safe for concurrent use; the batching core guarantees a
// single caller.
type Engine interface {
	// Configure applies generation parameters to the engine state.
	Configure(params Parameters) error

	// Generate synthesizes one text with the active parameters.
	Generate(ctx context.Context, text string) (*audio.Audio, error)

	// SampleRate returns the sample rate of generated audio.
	SampleRate() int

	// Name returns a human-readable engine name.
	Name() string
}

// BatchEngine is implemented by engines with a native multi-text entry point.
// GenerateBatch must return one waveform per text, in input order. params
// apply to that call only; callers must not assume they remain active.
type BatchEngine interface {
	Engine
	GenerateBatch(ctx context.Context, texts []string, params Parameters) ([]*audio.Audio, error)
}

// Preprocessor transforms a chunk before synthesis. It must not touch the engine.
type Preprocessor interface {
	Preprocess(chunk Chunk) (Chunk, error)
}

// Postprocessor transforms a delivered result. It must not touch the engine.
type Postprocessor interface {
	Postprocess(result Result) Result
}

// PreprocessFunc adapts a function to the Preprocessor interface.
type PreprocessFunc func(Chunk) (Chunk, error)

// Preprocess calls f(chunk).
func (f PreprocessFunc) Preprocess(chunk Chunk) (Chunk, error) { return f(chunk) }

// PostprocessFunc adapts a function to the Postprocessor interface.
type PostprocessFunc func(Result) Result

// Postprocess calls f(result).
func (f PostprocessFunc) Postprocess(result Result) Result { return f(result) }
