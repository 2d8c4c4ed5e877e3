// Package piper drives the Piper neural TTS binary as a synthesis engine.
//
// Every Generate call runs a fresh piper process with the active parameters
// on its command line and reads raw PCM16 from stdout. Piper has no native
// batch entry point, so the executor drives it serially and relies on
// configure avoidance between runs of matching chunks.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
)

// Piper's own defaults for its VITS sampling controls.
const (
	defaultNoiseScale  = 0.667
	defaultNoiseW      = 0.8
	defaultLengthScale = 1.0
)

// Engine runs one piper process per utterance.
type Engine struct {
	binary     string
	model      string
	sampleRate int
	timeout    time.Duration
	logger     *log.Logger

	mu     sync.Mutex
	params tts.Parameters
}

// New resolves the piper binary and model. It fails with
// tts.ErrEngineUnavailable when either cannot be found.
func New(cfg tts.PiperConfig) (*Engine, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = findBinary()
	} else if p, err := exec.LookPath(expand(binary)); err == nil {
		binary = p
	} else {
		binary = ""
	}
	if binary == "" {
		return nil, fmt.Errorf("%w: piper binary not found", tts.ErrEngineUnavailable)
	}

	model := expand(cfg.Model)
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("%w: piper model: %w", tts.ErrEngineUnavailable, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = 22050
	}

	e := &Engine{
		binary:     binary,
		model:      model,
		sampleRate: sr,
		timeout:    timeout,
		logger:     log.WithPrefix("piper"),
		params:     tts.DefaultParameters(),
	}
	e.logger.Debug("engine ready", "binary", binary, "model", model, "sample_rate", sr)
	return e, nil
}

// Name implements tts.Engine.
func (e *Engine) Name() string { return "piper" }

// SampleRate implements tts.Engine.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Configure implements tts.Engine. The parameters take effect on the next
// Generate.
func (e *Engine) Configure(params tts.Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	return nil
}

// Generate implements tts.Engine.
func (e *Engine) Generate(ctx context.Context, text string) (*audio.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	e.mu.Lock()
	args := e.args(e.params)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = strings.NewReader(text + "\n")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: piper: %w", tts.ErrTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("%w: %w", tts.ErrCanceled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: piper: %w: %s", tts.ErrGenerationFailed, err, lastLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: piper produced no audio", tts.ErrGenerationFailed)
	}

	a, err := audio.FromPCM16(stdout.Bytes(), e.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tts.ErrGenerationFailed, err)
	}
	e.logger.Debug("generated", "chars", len(text), "samples", a.Len(), "took", time.Since(start))
	return a, nil
}

// args maps the shared generation controls onto piper's flags: temperature
// scales noise_scale, exaggeration scales phoneme-duration noise and
// cfg_weight sets the pace. The defaults map to piper's own defaults.
func (e *Engine) args(p tts.Parameters) []string {
	noiseScale := defaultNoiseScale * p.Temperature / tts.DefaultTemperature
	noiseW := defaultNoiseW * (0.5 + p.Exaggeration)
	lengthScale := defaultLengthScale / (0.5 + p.CFGWeight)

	return []string{
		"--model", e.model,
		"--output-raw",
		"--noise_scale", formatFloat(noiseScale),
		"--noise_w", formatFloat(noiseW),
		"--length_scale", formatFloat(lengthScale),
		"--sentence_silence", "0",
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "no stderr output"
	}
	return s
}

func expand(path string) string {
	if p, err := homedir.Expand(path); err == nil {
		return p
	}
	return path
}

// findBinary looks for piper on PATH and in common install locations.
func findBinary() string {
	locations := []string{
		"piper",
		"/usr/local/bin/piper",
		"/usr/bin/piper",
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".local", "bin", "piper"),
			filepath.Join(home, "bin", "piper"),
		)
	}
	for _, loc := range locations {
		if path, err := exec.LookPath(loc); err == nil {
			return path
		}
	}
	return ""
}
