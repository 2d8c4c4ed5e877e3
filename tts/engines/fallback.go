package engines

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
)

// FallbackEngine wraps a primary engine and switches to a secondary engine
// once the primary has failed maxFailures times in a row.
type FallbackEngine struct {
	primary       tts.Engine
	fallback      tts.Engine
	failures      int
	maxFailures   int
	usingFallback bool
	mu            sync.Mutex
}

// NewFallbackEngine creates a new engine with automatic fallback capability.
func NewFallbackEngine(primary, fallback tts.Engine, maxFailures int) *FallbackEngine {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &FallbackEngine{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
	}
}

// Name describes the active engine.
func (f *FallbackEngine) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("%s (fallback %s)", f.active().Name(), f.standby().Name())
}

// SampleRate returns the active engine's rate.
func (f *FallbackEngine) SampleRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active().SampleRate()
}

// Configure applies params to both engines so a switch needs no replay.
func (f *FallbackEngine) Configure(params tts.Parameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	primaryErr := f.primary.Configure(params)
	fallbackErr := f.fallback.Configure(params)
	if primaryErr != nil {
		log.Warn("Fallback: primary configure failed", "engine", f.primary.Name(), "error", primaryErr)
	}
	if fallbackErr != nil {
		log.Warn("Fallback: secondary configure failed", "engine", f.fallback.Name(), "error", fallbackErr)
	}

	if f.usingFallback {
		return fallbackErr
	}
	return primaryErr
}

// Generate synthesizes with the active engine, switching over after
// repeated primary failures.
func (f *FallbackEngine) Generate(ctx context.Context, text string) (*audio.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.usingFallback {
		return f.fallback.Generate(ctx, text)
	}

	a, err := f.primary.Generate(ctx, text)
	if err == nil {
		f.recovered()
		return a, nil
	}
	if !f.failed(err) {
		return nil, err
	}

	a, err = f.fallback.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("both engines failed: %w", err)
	}
	return a, nil
}

// GenerateBatch forwards to the active engine when it supports native
// batching and reports tts.ErrBatchUnsupported otherwise.
func (f *FallbackEngine) GenerateBatch(ctx context.Context, texts []string, params tts.Parameters) ([]*audio.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	be, ok := f.active().(tts.BatchEngine)
	if !ok {
		return nil, tts.ErrBatchUnsupported
	}
	out, err := be.GenerateBatch(ctx, texts, params)
	if f.usingFallback {
		return out, err
	}
	if err == nil {
		f.recovered()
		// Keep the standby in step with the batch's parameter set.
		if cerr := f.fallback.Configure(params); cerr != nil {
			log.Warn("Fallback: secondary configure failed", "engine", f.fallback.Name(), "error", cerr)
		}
		return out, nil
	}
	f.failed(err)
	return nil, err
}

// UsingFallback reports whether the secondary engine is active.
func (f *FallbackEngine) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

// Reset attempts to reset to primary engine.
func (f *FallbackEngine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = 0
	f.usingFallback = false
	log.Info("Fallback: reset to primary engine", "engine", f.primary.Name())
}

// Status returns the current engine status.
func (f *FallbackEngine) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.usingFallback {
		return fmt.Sprintf("Using fallback engine (primary failed %d times)", f.failures)
	}
	return fmt.Sprintf("Using primary engine (failures: %d/%d)", f.failures, f.maxFailures)
}

func (f *FallbackEngine) active() tts.Engine {
	if f.usingFallback {
		return f.fallback
	}
	return f.primary
}

func (f *FallbackEngine) standby() tts.Engine {
	if f.usingFallback {
		return f.primary
	}
	return f.fallback
}

func (f *FallbackEngine) recovered() {
	if f.failures > 0 {
		log.Info("Fallback: primary engine recovered", "failures", f.failures)
		f.failures = 0
	}
}

// failed records a primary failure and reports whether the engine switched.
func (f *FallbackEngine) failed(err error) bool {
	f.failures++
	log.Warn("Fallback: primary engine failed", "attempt", f.failures, "max", f.maxFailures, "error", err)
	if f.failures < f.maxFailures {
		return false
	}
	log.Warn("Fallback: switching to fallback engine", "engine", f.fallback.Name(), "failures", f.failures)
	f.usingFallback = true
	return true
}

var _ tts.BatchEngine = (*FallbackEngine)(nil)
