// Package engines builds synthesis engines by name.
package engines

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/engines/mock"
	"github.com/dgnsrekt/batchtts/tts/engines/piper"
)

// New builds the engine registered under name.
func New(name string, cfg tts.Config) (tts.Engine, error) {
	opts := mock.OptionsFromConfig(cfg)
	switch strings.ToLower(name) {
	case "mock":
		if !cfg.Mock.NativeBatch {
			return mock.New(opts), nil
		}
		return mock.NewBatch(opts), nil
	case "mock-nobatch":
		return mock.New(opts), nil
	case "piper":
		e, err := piper.New(cfg.Piper)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", tts.ErrEngineUnavailable, name)
	}
}

// FromConfig builds cfg.Engine, wrapped in a FallbackEngine when
// cfg.Fallback is set.
func FromConfig(cfg tts.Config) (tts.Engine, error) {
	primary, err := New(cfg.Engine, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" {
		return primary, nil
	}
	secondary, err := New(cfg.Fallback, cfg)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return NewFallbackEngine(primary, secondary, cfg.FallbackAfter), nil
}
