package piper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/batchtts/tts"
)

// fakePiper writes a shell script standing in for the piper binary. It
// records its arguments and stdin next to itself and then runs body.
func fakePiper(t *testing.T, body string) (tts.PiperConfig, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake piper needs a POSIX shell")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "piper")
	script := "#!/bin/sh\n" +
		"echo \"$@\" > \"$0.args\"\n" +
		"cat > \"$0.stdin\"\n" +
		body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil { //nolint:gosec
		t.Fatal(err)
	}
	model := filepath.Join(dir, "voice.onnx")
	if err := os.WriteFile(model, []byte("model"), 0o600); err != nil {
		t.Fatal(err)
	}

	return tts.PiperConfig{Binary: bin, Model: model, SampleRate: 16000, Timeout: 5 * time.Second}, bin
}

func TestNew(t *testing.T) {
	cfg, _ := fakePiper(t, "")

	tests := []struct {
		name   string
		modify func(*tts.PiperConfig)
	}{
		{"missing binary", func(c *tts.PiperConfig) { c.Binary = filepath.Join(t.TempDir(), "nope") }},
		{"missing model", func(c *tts.PiperConfig) { c.Model = filepath.Join(t.TempDir(), "nope.onnx") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			tt.modify(&c)
			if _, err := New(c); !errors.Is(err, tts.ErrEngineUnavailable) {
				t.Errorf("New() error = %v, want ErrEngineUnavailable", err)
			}
		})
	}

	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if e.Name() != "piper" || e.SampleRate() != 16000 {
		t.Errorf("engine = %s at %d Hz", e.Name(), e.SampleRate())
	}
}

func TestGenerate(t *testing.T) {
	// Two PCM16 samples: 0x4000 and 0xC000.
	cfg, bin := fakePiper(t, `printf '\000\100\000\300'`)
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	p := tts.DefaultParameters()
	p.Temperature = 1.6
	if err := e.Configure(p); err != nil {
		t.Fatal(err)
	}

	a, err := e.Generate(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if a.SampleRate != 16000 || a.Len() != 2 {
		t.Fatalf("audio = %d samples at %d Hz", a.Len(), a.SampleRate)
	}
	if a.Samples[0] <= 0.49 || a.Samples[1] >= -0.49 {
		t.Errorf("samples = %v, want about [0.5 -0.5]", a.Samples)
	}

	stdin, _ := os.ReadFile(bin + ".stdin")
	if string(stdin) != "Hello there.\n" {
		t.Errorf("stdin = %q", stdin)
	}
	args, _ := os.ReadFile(bin + ".args")
	for _, want := range []string{"--model " + cfg.Model, "--output-raw", "--noise_scale 1.334", "--noise_w 0.800", "--length_scale 1.000"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		text string
		want error
	}{
		{"process fails", "echo 'voice not loaded' >&2; exit 3", "Hi.", tts.ErrGenerationFailed},
		{"no audio", "", "Hi.", tts.ErrGenerationFailed},
		{"odd output", `printf '\000'`, "Hi.", tts.ErrGenerationFailed},
		{"empty text", "", "  ", tts.ErrEmptyText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := fakePiper(t, tt.body)
			e, err := New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			_, err = e.Generate(context.Background(), tt.text)
			if !errors.Is(err, tt.want) {
				t.Errorf("Generate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerate_Stderr(t *testing.T) {
	cfg, _ := fakePiper(t, "echo 'voice not loaded' >&2; exit 3")
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Generate(context.Background(), "Hi."); err == nil || !strings.Contains(err.Error(), "voice not loaded") {
		t.Errorf("error = %v, want piper's stderr", err)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	cfg, _ := fakePiper(t, "exec sleep 5")
	cfg.Timeout = 100 * time.Millisecond
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Generate(context.Background(), "Hi."); !errors.Is(err, tts.ErrTimeout) {
		t.Errorf("Generate() error = %v, want ErrTimeout", err)
	}
}

func TestConfigure_Invalid(t *testing.T) {
	cfg, _ := fakePiper(t, "")
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	p := tts.DefaultParameters()
	p.TopP = -1
	if err := e.Configure(p); err == nil {
		t.Error("expected invalid parameters to be rejected")
	}
}
