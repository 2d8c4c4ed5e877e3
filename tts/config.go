package tts

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all batching core configuration options.
type Config struct {
	// Engine selection
	Engine     string `yaml:"engine" env:"BATCHTTS_ENGINE" envDefault:"mock"`
	SampleRate int    `yaml:"sample_rate" env:"BATCHTTS_SAMPLE_RATE" envDefault:"24000"`

	// Fallback names a secondary engine that takes over after FallbackAfter
	// consecutive primary failures. Empty disables failover.
	Fallback      string `yaml:"fallback" env:"BATCHTTS_FALLBACK_ENGINE"`
	FallbackAfter int    `yaml:"fallback_after" env:"BATCHTTS_FALLBACK_AFTER" envDefault:"3"`

	Batching BatchingConfig `yaml:"batching"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Mock     MockConfig     `yaml:"mock"`
	Piper    PiperConfig    `yaml:"piper"`
}

// BatchingConfig controls chunk grouping.
type BatchingConfig struct {
	Tolerance     float64 `yaml:"tolerance" env:"BATCHTTS_BATCH_TOLERANCE" envDefault:"0.05"`
	MinBatchSize  int     `yaml:"min_batch_size" env:"BATCHTTS_MIN_BATCH_SIZE" envDefault:"2"`
	MaxBatchSize  int     `yaml:"max_batch_size" env:"BATCHTTS_MAX_BATCH_SIZE" envDefault:"8"`
	PreserveOrder bool    `yaml:"preserve_order" env:"BATCHTTS_PRESERVE_ORDER" envDefault:"true"`
	Match         string  `yaml:"match" env:"BATCHTTS_MATCH" envDefault:"quantized"`
}

// PipelineConfig controls the streaming scheduler.
type PipelineConfig struct {
	QueueSize     int           `yaml:"queue_size" env:"BATCHTTS_QUEUE_SIZE" envDefault:"16"`
	MaxBatch      int           `yaml:"max_batch" env:"BATCHTTS_PIPELINE_MAX_BATCH" envDefault:"8"`
	FlushTimeout  time.Duration `yaml:"flush_timeout" env:"BATCHTTS_FLUSH_TIMEOUT" envDefault:"50ms"`
	SubmitTimeout time.Duration `yaml:"submit_timeout" env:"BATCHTTS_SUBMIT_TIMEOUT" envDefault:"1s"`
	PollInterval  time.Duration `yaml:"poll_interval" env:"BATCHTTS_POLL_INTERVAL" envDefault:"10ms"`
	JoinTimeout   time.Duration `yaml:"join_timeout" env:"BATCHTTS_JOIN_TIMEOUT" envDefault:"5s"`
	ResultTimeout time.Duration `yaml:"result_timeout" env:"BATCHTTS_RESULT_TIMEOUT" envDefault:"30s"`
	Workers       int           `yaml:"workers" env:"BATCHTTS_POSTPROCESS_WORKERS" envDefault:"4"`
}

// CacheConfig controls the synthesized audio cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" env:"BATCHTTS_CACHE_ENABLED" envDefault:"false"`
	MemoryEntries int           `yaml:"memory_entries" env:"BATCHTTS_CACHE_MEMORY_ENTRIES" envDefault:"256"`
	MemoryBytes   int64         `yaml:"memory_bytes" env:"BATCHTTS_CACHE_MEMORY_BYTES" envDefault:"104857600"`
	Dir           string        `yaml:"dir" env:"BATCHTTS_CACHE_DIR"`
	DiskBytes     int64         `yaml:"disk_bytes" env:"BATCHTTS_CACHE_DISK_BYTES" envDefault:"1073741824"`
	TTL           time.Duration `yaml:"ttl" env:"BATCHTTS_CACHE_TTL" envDefault:"168h"`
}

// MockConfig contains mock engine settings.
type MockConfig struct {
	GenerationDelay time.Duration `yaml:"generation_delay" env:"BATCHTTS_MOCK_GENERATION_DELAY" envDefault:"5ms"`
	NativeBatch     bool          `yaml:"native_batch" env:"BATCHTTS_MOCK_NATIVE_BATCH" envDefault:"true"`
	FailureRate     float64       `yaml:"failure_rate" env:"BATCHTTS_MOCK_FAILURE_RATE" envDefault:"0.0"`
}

// PiperConfig contains settings for the piper subprocess engine.
type PiperConfig struct {
	// Binary is the piper executable. Empty searches PATH and common
	// install locations.
	Binary     string        `yaml:"binary" env:"BATCHTTS_PIPER_BINARY"`
	Model      string        `yaml:"model" env:"BATCHTTS_PIPER_MODEL"`
	SampleRate int           `yaml:"sample_rate" env:"BATCHTTS_PIPER_SAMPLE_RATE" envDefault:"22050"`
	Timeout    time.Duration `yaml:"timeout" env:"BATCHTTS_PIPER_TIMEOUT" envDefault:"30s"`
}

// Match modes accepted by BatchingConfig.Match.
const (
	MatchQuantized = "quantized"
	MatchAbsolute  = "absolute"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:        "mock",
		SampleRate:    24000,
		FallbackAfter: 3,
		Batching: BatchingConfig{
			Tolerance:     0.05,
			MinBatchSize:  2,
			MaxBatchSize:  8,
			PreserveOrder: true,
			Match:         MatchQuantized,
		},
		Pipeline: PipelineConfig{
			QueueSize:     16,
			MaxBatch:      8,
			FlushTimeout:  50 * time.Millisecond,
			SubmitTimeout: time.Second,
			PollInterval:  10 * time.Millisecond,
			JoinTimeout:   5 * time.Second,
			ResultTimeout: 30 * time.Second,
			Workers:       4,
		},
		Cache: CacheConfig{
			Enabled:       false,
			MemoryEntries: 256,
			MemoryBytes:   100 << 20,
			DiskBytes:     1 << 30,
			TTL:           7 * 24 * time.Hour,
		},
		Mock: MockConfig{
			GenerationDelay: 5 * time.Millisecond,
			NativeBatch:     true,
		},
		Piper: PiperConfig{
			SampleRate: 22050,
			Timeout:    30 * time.Second,
		},
	}
}

// ConfigFromEnv builds a Config from BATCHTTS_* environment variables,
// falling back to the envDefault tags for anything unset.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return DefaultConfig(), fmt.Errorf("%w: environment: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Engines lists the engine names accepted by Config.Engine and Config.Fallback.
var Engines = []string{"mock", "mock-nobatch", "piper"}

func normalizeEngine(name string) (string, bool) {
	for _, e := range Engines {
		if strings.EqualFold(name, e) {
			return e, true
		}
	}
	return name, false
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	engine, ok := normalizeEngine(c.Engine)
	if !ok {
		return fmt.Errorf("%w: engine %q must be one of %v", ErrInvalidConfig, c.Engine, Engines)
	}
	c.Engine = engine

	if c.Fallback != "" {
		fallback, ok := normalizeEngine(c.Fallback)
		if !ok {
			return fmt.Errorf("%w: fallback engine %q must be one of %v", ErrInvalidConfig, c.Fallback, Engines)
		}
		c.Fallback = fallback
		if c.FallbackAfter < 1 {
			return fmt.Errorf("%w: fallback_after must be at least 1, got %d", ErrInvalidConfig, c.FallbackAfter)
		}
	}

	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	sampleRateValid := false
	for _, sr := range validSampleRates {
		if c.SampleRate == sr {
			sampleRateValid = true
			break
		}
	}
	if !sampleRateValid {
		return fmt.Errorf("%w: sample rate %d must be one of %v", ErrInvalidConfig, c.SampleRate, validSampleRates)
	}

	if err := c.Batching.Validate(); err != nil {
		return fmt.Errorf("batching config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := c.Mock.Validate(); err != nil {
		return fmt.Errorf("mock config: %w", err)
	}
	if c.Engine == "piper" || c.Fallback == "piper" {
		if err := c.Piper.Validate(); err != nil {
			return fmt.Errorf("piper config: %w", err)
		}
	}
	return nil
}

// Validate checks the grouping settings.
func (c *BatchingConfig) Validate() error {
	// Zero selects exact matching.
	if c.Tolerance < 0 || c.Tolerance > 1.0 {
		return fmt.Errorf("%w: tolerance must be in [0, 1], got %f", ErrInvalidConfig, c.Tolerance)
	}
	if c.MinBatchSize < 1 {
		return fmt.Errorf("%w: min_batch_size must be at least 1, got %d", ErrInvalidConfig, c.MinBatchSize)
	}
	if c.MaxBatchSize < c.MinBatchSize {
		return fmt.Errorf("%w: max_batch_size %d is below min_batch_size %d", ErrInvalidConfig, c.MaxBatchSize, c.MinBatchSize)
	}
	switch strings.ToLower(c.Match) {
	case MatchQuantized, MatchAbsolute:
		c.Match = strings.ToLower(c.Match)
	default:
		return fmt.Errorf("%w: match must be %q or %q, got %q", ErrInvalidConfig, MatchQuantized, MatchAbsolute, c.Match)
	}
	return nil
}

// Validate checks the scheduler settings.
func (c *PipelineConfig) Validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be at least 1, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if c.MaxBatch < 1 {
		return fmt.Errorf("%w: max_batch must be at least 1, got %d", ErrInvalidConfig, c.MaxBatch)
	}
	if c.FlushTimeout <= 0 {
		return fmt.Errorf("%w: flush_timeout must be positive, got %v", ErrInvalidConfig, c.FlushTimeout)
	}
	if c.SubmitTimeout < 0 {
		return fmt.Errorf("%w: submit_timeout cannot be negative, got %v", ErrInvalidConfig, c.SubmitTimeout)
	}
	if c.PollInterval <= 0 || c.PollInterval > c.FlushTimeout {
		return fmt.Errorf("%w: poll_interval must be in (0, flush_timeout], got %v", ErrInvalidConfig, c.PollInterval)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("%w: join_timeout must be positive, got %v", ErrInvalidConfig, c.JoinTimeout)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// Validate checks the cache settings.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryEntries < 1 {
		return fmt.Errorf("%w: memory_entries must be at least 1, got %d", ErrInvalidConfig, c.MemoryEntries)
	}
	if c.MemoryBytes < 1 {
		return fmt.Errorf("%w: memory_bytes must be positive, got %d", ErrInvalidConfig, c.MemoryBytes)
	}
	if c.Dir != "" && c.DiskBytes < 1 {
		return fmt.Errorf("%w: disk_bytes must be positive, got %d", ErrInvalidConfig, c.DiskBytes)
	}
	return nil
}

// Validate checks the mock engine settings.
func (c *MockConfig) Validate() error {
	if c.GenerationDelay < 0 {
		return fmt.Errorf("%w: generation_delay cannot be negative, got %v", ErrInvalidConfig, c.GenerationDelay)
	}
	if c.FailureRate < 0.0 || c.FailureRate > 1.0 {
		return fmt.Errorf("%w: failure_rate must be between 0.0 and 1.0, got %f", ErrInvalidConfig, c.FailureRate)
	}
	return nil
}

// Validate checks the piper settings. It only runs when piper is selected.
func (c *PiperConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.SampleRate < 8000 {
		return fmt.Errorf("%w: sample_rate must be at least 8000, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}
