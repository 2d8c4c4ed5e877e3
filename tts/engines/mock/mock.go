// Package mock provides deterministic synthesis engines for tests and demos.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
)

// Options configures a mock engine.
type Options struct {
	SampleRate int
	// Delay is the simulated cost of one engine call. A native batch call
	// pays it once for all texts.
	Delay time.Duration
	// FailureRate is the fraction of texts that fail. Selection hashes the
	// text, so the same text always fails or always succeeds.
	FailureRate float64
}

// DefaultOptions returns options with no delay and no failures.
func DefaultOptions() Options {
	return Options{SampleRate: audio.DefaultSampleRate}
}

// OptionsFromConfig converts the mock section of a Config.
func OptionsFromConfig(cfg tts.Config) Options {
	return Options{
		SampleRate:  cfg.SampleRate,
		Delay:       cfg.Mock.GenerationDelay,
		FailureRate: cfg.Mock.FailureRate,
	}
}

// Engine is a serial-only mock. It does not implement tts.BatchEngine.
type Engine struct {
	mu sync.Mutex

	name       string
	sampleRate int
	delay      time.Duration
	rate       float64

	active     tts.Parameters
	configured bool

	failOn        map[string]error
	panicOn       map[string]bool
	configureErr  error
	generateCalls int
	configures    []tts.Parameters
	texts         []string

	inFlight    int
	maxInFlight int
}

// New creates a serial-only mock engine.
func New(opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.DefaultSampleRate
	}
	return &Engine{
		name:       "mock-nobatch",
		sampleRate: opts.SampleRate,
		delay:      opts.Delay,
		rate:       opts.FailureRate,
		failOn:     make(map[string]error),
		panicOn:    make(map[string]bool),
	}
}

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// SampleRate returns the rate of generated audio.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Configure makes params the active set.
func (e *Engine) Configure(params tts.Parameters) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.configureErr != nil {
		return e.configureErr
	}
	if err := params.Validate(); err != nil {
		return err
	}
	e.active = params
	e.configured = true
	e.configures = append(e.configures, params)
	return nil
}

// Generate synthesizes text with the active parameters, or the defaults when
// Configure was never called.
func (e *Engine) Generate(ctx context.Context, text string) (*audio.Audio, error) {
	e.enter()
	defer e.exit()

	e.mu.Lock()
	e.generateCalls++
	e.texts = append(e.texts, text)
	params := e.current()
	e.mu.Unlock()

	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.synthesize(text, params)
}

// ActiveParameters returns the parameter set the engine currently holds.
func (e *Engine) ActiveParameters() (tts.Parameters, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active, e.configured
}

// Test control methods

// SetDelay sets the simulated per-call delay.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	e.delay = d
	e.mu.Unlock()
}

// FailOn makes every synthesis of text fail with err.
func (e *Engine) FailOn(text string, err error) {
	if err == nil {
		err = fmt.Errorf("mock: %w", tts.ErrGenerationFailed)
	}
	e.mu.Lock()
	e.failOn[text] = err
	e.mu.Unlock()
}

// PanicOn makes every synthesis of text panic.
func (e *Engine) PanicOn(text string) {
	e.mu.Lock()
	e.panicOn[text] = true
	e.mu.Unlock()
}

// SetConfigureError makes Configure fail with err until cleared with nil.
func (e *Engine) SetConfigureError(err error) {
	e.mu.Lock()
	e.configureErr = err
	e.mu.Unlock()
}

// ClearFailures resets FailOn, PanicOn and the configure error.
func (e *Engine) ClearFailures() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn = make(map[string]error)
	e.panicOn = make(map[string]bool)
	e.configureErr = nil
}

// GenerateCalls returns the number of single-text calls.
func (e *Engine) GenerateCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generateCalls
}

// ConfigureCount returns the number of successful Configure calls.
func (e *Engine) ConfigureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.configures)
}

// Configures returns every parameter set applied through Configure.
func (e *Engine) Configures() []tts.Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]tts.Parameters(nil), e.configures...)
}

// Texts returns every text passed to Generate, in call order.
func (e *Engine) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

// MaxConcurrency returns the highest number of overlapping engine calls
// observed. A single-consumer caller keeps it at 1.
func (e *Engine) MaxConcurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInFlight
}

func (e *Engine) current() tts.Parameters {
	if e.configured {
		return e.active
	}
	return tts.DefaultParameters()
}

func (e *Engine) enter() {
	e.mu.Lock()
	e.inFlight++
	e.maxInFlight = max(e.maxInFlight, e.inFlight)
	e.mu.Unlock()
}

func (e *Engine) exit() {
	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()
}

func (e *Engine) wait(ctx context.Context) error {
	e.mu.Lock()
	d := e.delay
	e.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// synthesize renders a short tone. Pitch follows cfg_weight and level
// follows exaggeration, so different parameter sets give different audio.
func (e *Engine) synthesize(text string, p tts.Parameters) (*audio.Audio, error) {
	e.mu.Lock()
	failErr, fail := e.failOn[text]
	panics := e.panicOn[text]
	rate := e.rate
	e.mu.Unlock()

	if panics {
		panic(fmt.Sprintf("mock: engine crashed on %q", text))
	}
	if fail {
		return nil, failErr
	}
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	if rate > 0 && fraction(text) < rate {
		return nil, fmt.Errorf("mock: simulated failure: %w", tts.ErrGenerationFailed)
	}

	words := len(strings.Fields(text))
	n := int(float64(e.sampleRate) * 0.02 * float64(words+1))
	freq := 110 + 440*p.CFGWeight
	level := float32(math.Min(0.9, 0.2+0.5*p.Exaggeration))

	samples := make([]float32, n)
	for i := range samples {
		samples[i] = level * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(e.sampleRate)))
	}
	return &audio.Audio{Samples: samples, SampleRate: e.sampleRate}, nil
}

// fraction maps text onto [0, 1).
func fraction(text string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return float64(h.Sum32()) / float64(math.MaxUint32+1)
}
