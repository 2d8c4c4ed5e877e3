package engines

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/engines/mock"
)

func TestFallbackEngine_Switch(t *testing.T) {
	primary := mock.NewBatch(mock.DefaultOptions())
	secondary := mock.New(mock.DefaultOptions())
	fe := NewFallbackEngine(primary, secondary, 2)
	ctx := context.Background()

	primary.FailOn("hello", nil)

	if _, err := fe.Generate(ctx, "hello"); err == nil {
		t.Fatal("Expected first failure to surface")
	}
	if fe.UsingFallback() {
		t.Fatal("Should not switch before max failures")
	}

	a, err := fe.Generate(ctx, "hello")
	if err != nil {
		t.Fatalf("Expected fallback to succeed, got %v", err)
	}
	if a == nil || !fe.UsingFallback() {
		t.Fatal("Expected switch to fallback engine")
	}
	if secondary.GenerateCalls() != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.GenerateCalls())
	}

	// The serial fallback has no batch entry point.
	if _, err := fe.GenerateBatch(ctx, []string{"x"}, tts.DefaultParameters()); !errors.Is(err, tts.ErrBatchUnsupported) {
		t.Errorf("Expected ErrBatchUnsupported, got %v", err)
	}

	fe.Reset()
	if fe.UsingFallback() {
		t.Error("Reset should return to primary")
	}
	if !strings.Contains(fe.Status(), "primary") {
		t.Errorf("Status() = %q", fe.Status())
	}
}

func TestFallbackEngine_RecoveryResetsCount(t *testing.T) {
	primary := mock.New(mock.DefaultOptions())
	fe := NewFallbackEngine(primary, mock.New(mock.DefaultOptions()), 2)
	ctx := context.Background()

	primary.FailOn("bad", nil)
	_, _ = fe.Generate(ctx, "bad")
	if _, err := fe.Generate(ctx, "good"); err != nil {
		t.Fatal(err)
	}
	_, _ = fe.Generate(ctx, "bad")

	if fe.UsingFallback() {
		t.Error("Non-consecutive failures should not trigger fallback")
	}
}

func TestFallbackEngine_ConfigureBoth(t *testing.T) {
	primary := mock.New(mock.DefaultOptions())
	secondary := mock.New(mock.DefaultOptions())
	fe := NewFallbackEngine(primary, secondary, 1)

	p := tts.DefaultParameters()
	p.Temperature = 0.3
	if err := fe.Configure(p); err != nil {
		t.Fatal(err)
	}
	for _, e := range []*mock.Engine{primary, secondary} {
		if got, _ := e.ActiveParameters(); got != p {
			t.Errorf("%s active = %v, want %v", e.Name(), got, p)
		}
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*tts.Config)
		wantBatch bool
		wantFB    bool
		wantErr   bool
	}{
		{"default mock", func(*tts.Config) {}, true, false, false},
		{"native batch off", func(c *tts.Config) { c.Mock.NativeBatch = false }, false, false, false},
		{"no batch engine", func(c *tts.Config) { c.Engine = "mock-nobatch" }, false, false, false},
		{"with fallback", func(c *tts.Config) { c.Fallback = "mock-nobatch" }, true, true, false},
		{"unknown", func(c *tts.Config) { c.Engine = "espeak" }, false, false, true},
		{"piper unavailable", func(c *tts.Config) {
			c.Engine = "piper"
			c.Piper.Binary = "/nonexistent/piper"
			c.Piper.Model = "/nonexistent/voice.onnx"
		}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tts.DefaultConfig()
			tt.modify(&cfg)

			e, err := FromConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, tts.ErrEngineUnavailable) {
					t.Errorf("Expected ErrEngineUnavailable, got %v", err)
				}
				return
			}
			_, isFB := e.(*FallbackEngine)
			if isFB != tt.wantFB {
				t.Errorf("fallback wrapper = %v, want %v", isFB, tt.wantFB)
			}
			if !tt.wantFB {
				_, isBatch := e.(tts.BatchEngine)
				if isBatch != tt.wantBatch {
					t.Errorf("batch engine = %v, want %v", isBatch, tt.wantBatch)
				}
			}
		})
	}
}
