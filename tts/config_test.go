package tts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestDefaultConfig tests that default configuration is valid.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}

	if cfg.Engine != "mock" {
		t.Errorf("Default engine should be mock, got %s", cfg.Engine)
	}
	if cfg.Pipeline.QueueSize != 16 || cfg.Pipeline.MaxBatch != 8 {
		t.Errorf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.FlushTimeout != 50*time.Millisecond {
		t.Errorf("FlushTimeout = %v, want 50ms", cfg.Pipeline.FlushTimeout)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled by default")
	}
}

// TestConfigValidation tests configuration validation.
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid engine",
			modify: func(c *Config) {
				c.Engine = "invalid"
			},
			wantErr: true,
			errMsg:  "engine",
		},
		{
			name: "case insensitive engine",
			modify: func(c *Config) {
				c.Engine = "MOCK-NOBATCH"
			},
			wantErr: false,
		},
		{
			name: "unknown fallback engine",
			modify: func(c *Config) {
				c.Fallback = "espeak"
			},
			wantErr: true,
			errMsg:  "fallback",
		},
		{
			name: "fallback without threshold",
			modify: func(c *Config) {
				c.Fallback = "mock-nobatch"
				c.FallbackAfter = 0
			},
			wantErr: true,
			errMsg:  "fallback_after",
		},
		{
			name: "invalid sample rate",
			modify: func(c *Config) {
				c.SampleRate = 12345
			},
			wantErr: true,
			errMsg:  "sample rate",
		},
		{
			name: "zero tolerance is exact matching",
			modify: func(c *Config) {
				c.Batching.Tolerance = 0
			},
			wantErr: false,
		},
		{
			name: "negative tolerance",
			modify: func(c *Config) {
				c.Batching.Tolerance = -0.1
			},
			wantErr: true,
			errMsg:  "tolerance",
		},
		{
			name: "max below min",
			modify: func(c *Config) {
				c.Batching.MinBatchSize = 4
				c.Batching.MaxBatchSize = 3
			},
			wantErr: true,
			errMsg:  "max_batch_size",
		},
		{
			name: "unknown match mode",
			modify: func(c *Config) {
				c.Batching.Match = "fuzzy"
			},
			wantErr: true,
			errMsg:  "match",
		},
		{
			name: "case insensitive match mode",
			modify: func(c *Config) {
				c.Batching.Match = "Absolute"
			},
			wantErr: false,
		},
		{
			name: "zero queue size",
			modify: func(c *Config) {
				c.Pipeline.QueueSize = 0
			},
			wantErr: true,
			errMsg:  "queue_size",
		},
		{
			name: "poll interval above flush timeout",
			modify: func(c *Config) {
				c.Pipeline.PollInterval = time.Second
			},
			wantErr: true,
			errMsg:  "poll_interval",
		},
		{
			name: "enabled cache without entries",
			modify: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.MemoryEntries = 0
			},
			wantErr: true,
			errMsg:  "memory_entries",
		},
		{
			name: "failure rate out of range",
			modify: func(c *Config) {
				c.Mock.FailureRate = 1.5
			},
			wantErr: true,
			errMsg:  "failure_rate",
		},
		{
			name: "piper without model",
			modify: func(c *Config) {
				c.Engine = "piper"
			},
			wantErr: true,
			errMsg:  "model",
		},
		{
			name: "piper fallback",
			modify: func(c *Config) {
				c.Fallback = "piper"
				c.Piper.Model = "voice.onnx"
			},
			wantErr: false,
		},
		{
			name: "piper settings ignored when unused",
			modify: func(c *Config) {
				c.Piper.Timeout = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
				}
			}
		})
	}
}

// TestValidateNormalizesCase tests that Validate lowercases enum fields.
func TestValidateNormalizesCase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = "Mock"
	cfg.Batching.Match = "QUANTIZED"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Engine != "mock" {
		t.Errorf("Engine = %q, want mock", cfg.Engine)
	}
	if cfg.Batching.Match != MatchQuantized {
		t.Errorf("Match = %q, want %q", cfg.Batching.Match, MatchQuantized)
	}
}

// TestConfigFromEnv tests environment overrides.
func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BATCHTTS_MAX_BATCH_SIZE", "4")
	t.Setenv("BATCHTTS_FLUSH_TIMEOUT", "20ms")
	t.Setenv("BATCHTTS_MOCK_NATIVE_BATCH", "false")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}
	if cfg.Batching.MaxBatchSize != 4 {
		t.Errorf("MaxBatchSize = %d, want 4", cfg.Batching.MaxBatchSize)
	}
	if cfg.Pipeline.FlushTimeout != 20*time.Millisecond {
		t.Errorf("FlushTimeout = %v, want 20ms", cfg.Pipeline.FlushTimeout)
	}
	if cfg.Mock.NativeBatch {
		t.Error("NativeBatch should be false")
	}
	// Unset variables fall back to their defaults.
	if cfg.Batching.Tolerance != DefaultConfig().Batching.Tolerance {
		t.Errorf("Tolerance = %v, want default", cfg.Batching.Tolerance)
	}
}

// TestConfigFromEnvInvalid tests that malformed values are reported.
func TestConfigFromEnvInvalid(t *testing.T) {
	t.Setenv("BATCHTTS_QUEUE_SIZE", "lots")

	if _, err := ConfigFromEnv(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// TestLoadConfigFromViper tests loading configuration from Viper.
func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("batchtts.engine", "mock-nobatch")
	viper.Set("batchtts.batching.tolerance", 0.1)
	viper.Set("batchtts.batching.max_batch_size", 5)
	viper.Set("batchtts.batching.match", "absolute")
	viper.Set("batchtts.pipeline.flush_timeout", "25ms")
	viper.Set("batchtts.pipeline.join_timeout", 2*time.Second)
	viper.Set("batchtts.cache.enabled", true)

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper() error = %v", err)
	}

	if cfg.Engine != "mock-nobatch" {
		t.Errorf("Engine = %s, want mock-nobatch", cfg.Engine)
	}
	if cfg.Batching.Tolerance != 0.1 {
		t.Errorf("Tolerance = %v, want 0.1", cfg.Batching.Tolerance)
	}
	if cfg.Batching.MaxBatchSize != 5 {
		t.Errorf("MaxBatchSize = %d, want 5", cfg.Batching.MaxBatchSize)
	}
	if cfg.Batching.Match != MatchAbsolute {
		t.Errorf("Match = %s, want absolute", cfg.Batching.Match)
	}
	if cfg.Pipeline.FlushTimeout != 25*time.Millisecond {
		t.Errorf("FlushTimeout = %v, want 25ms", cfg.Pipeline.FlushTimeout)
	}
	if cfg.Pipeline.JoinTimeout != 2*time.Second {
		t.Errorf("JoinTimeout = %v, want 2s", cfg.Pipeline.JoinTimeout)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled")
	}
}

// TestLoadConfigFromViperInvalid tests that invalid values fail validation.
func TestLoadConfigFromViperInvalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("batchtts.batching.min_batch_size", 10)
	viper.Set("batchtts.batching.max_batch_size", 2)

	if _, err := LoadConfigFromViper(); err == nil {
		t.Error("expected error for inverted batch bounds")
	}
}

// TestSetDefaults tests that SetDefaults round-trips through the loader.
func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper() error = %v", err)
	}
	want := DefaultConfig()
	if cfg.Batching != want.Batching {
		t.Errorf("Batching = %+v, want %+v", cfg.Batching, want.Batching)
	}
	if cfg.Pipeline != want.Pipeline {
		t.Errorf("Pipeline = %+v, want %+v", cfg.Pipeline, want.Pipeline)
	}
	if cfg.Mock != want.Mock {
		t.Errorf("Mock = %+v, want %+v", cfg.Mock, want.Mock)
	}
}
