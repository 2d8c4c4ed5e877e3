package tts

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads configuration from Viper on top of the
// environment-derived config. Keys live under the "batchtts." namespace.
func LoadConfigFromViper() (Config, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return cfg, err
	}

	if viper.IsSet("batchtts.engine") {
		cfg.Engine = viper.GetString("batchtts.engine")
	}
	if viper.IsSet("batchtts.sample_rate") {
		cfg.SampleRate = viper.GetInt("batchtts.sample_rate")
	}
	if viper.IsSet("batchtts.fallback") {
		cfg.Fallback = viper.GetString("batchtts.fallback")
	}
	if viper.IsSet("batchtts.fallback_after") {
		cfg.FallbackAfter = viper.GetInt("batchtts.fallback_after")
	}

	loadBatchingConfig(&cfg.Batching)
	loadPipelineConfig(&cfg.Pipeline)
	loadCacheConfig(&cfg.Cache)
	loadMockConfig(&cfg.Mock)
	loadPiperConfig(&cfg.Piper)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid batchtts configuration: %w", err)
	}

	return cfg, nil
}

func loadBatchingConfig(cfg *BatchingConfig) {
	if viper.IsSet("batchtts.batching.tolerance") {
		cfg.Tolerance = viper.GetFloat64("batchtts.batching.tolerance")
	}
	if viper.IsSet("batchtts.batching.min_batch_size") {
		cfg.MinBatchSize = viper.GetInt("batchtts.batching.min_batch_size")
	}
	if viper.IsSet("batchtts.batching.max_batch_size") {
		cfg.MaxBatchSize = viper.GetInt("batchtts.batching.max_batch_size")
	}
	if viper.IsSet("batchtts.batching.preserve_order") {
		cfg.PreserveOrder = viper.GetBool("batchtts.batching.preserve_order")
	}
	if viper.IsSet("batchtts.batching.match") {
		cfg.Match = viper.GetString("batchtts.batching.match")
	}
}

func loadPipelineConfig(cfg *PipelineConfig) {
	if viper.IsSet("batchtts.pipeline.queue_size") {
		cfg.QueueSize = viper.GetInt("batchtts.pipeline.queue_size")
	}
	if viper.IsSet("batchtts.pipeline.max_batch") {
		cfg.MaxBatch = viper.GetInt("batchtts.pipeline.max_batch")
	}
	if viper.IsSet("batchtts.pipeline.workers") {
		cfg.Workers = viper.GetInt("batchtts.pipeline.workers")
	}
	loadDuration("batchtts.pipeline.flush_timeout", &cfg.FlushTimeout)
	loadDuration("batchtts.pipeline.submit_timeout", &cfg.SubmitTimeout)
	loadDuration("batchtts.pipeline.poll_interval", &cfg.PollInterval)
	loadDuration("batchtts.pipeline.join_timeout", &cfg.JoinTimeout)
	loadDuration("batchtts.pipeline.result_timeout", &cfg.ResultTimeout)
}

func loadCacheConfig(cfg *CacheConfig) {
	if viper.IsSet("batchtts.cache.enabled") {
		cfg.Enabled = viper.GetBool("batchtts.cache.enabled")
	}
	if viper.IsSet("batchtts.cache.memory_entries") {
		cfg.MemoryEntries = viper.GetInt("batchtts.cache.memory_entries")
	}
	if viper.IsSet("batchtts.cache.memory_bytes") {
		cfg.MemoryBytes = viper.GetInt64("batchtts.cache.memory_bytes")
	}
	if viper.IsSet("batchtts.cache.dir") {
		cfg.Dir = viper.GetString("batchtts.cache.dir")
	}
	if viper.IsSet("batchtts.cache.disk_bytes") {
		cfg.DiskBytes = viper.GetInt64("batchtts.cache.disk_bytes")
	}
	loadDuration("batchtts.cache.ttl", &cfg.TTL)
}

func loadMockConfig(cfg *MockConfig) {
	loadDuration("batchtts.mock.generation_delay", &cfg.GenerationDelay)
	if viper.IsSet("batchtts.mock.native_batch") {
		cfg.NativeBatch = viper.GetBool("batchtts.mock.native_batch")
	}
	if viper.IsSet("batchtts.mock.failure_rate") {
		cfg.FailureRate = viper.GetFloat64("batchtts.mock.failure_rate")
	}
}

func loadPiperConfig(cfg *PiperConfig) {
	if viper.IsSet("batchtts.piper.binary") {
		cfg.Binary = viper.GetString("batchtts.piper.binary")
	}
	if viper.IsSet("batchtts.piper.model") {
		cfg.Model = viper.GetString("batchtts.piper.model")
	}
	if viper.IsSet("batchtts.piper.sample_rate") {
		cfg.SampleRate = viper.GetInt("batchtts.piper.sample_rate")
	}
	loadDuration("batchtts.piper.timeout", &cfg.Timeout)
}

// loadDuration accepts both duration strings ("50ms") and native values.
func loadDuration(key string, dst *time.Duration) {
	if !viper.IsSet(key) {
		return
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		*dst = d
		return
	}
	if d := viper.GetDuration(key); d > 0 {
		*dst = d
	}
}

// SetDefaults sets default values in Viper for the batching core.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("batchtts.engine", defaults.Engine)
	viper.SetDefault("batchtts.sample_rate", defaults.SampleRate)
	viper.SetDefault("batchtts.fallback_after", defaults.FallbackAfter)

	viper.SetDefault("batchtts.batching.tolerance", defaults.Batching.Tolerance)
	viper.SetDefault("batchtts.batching.min_batch_size", defaults.Batching.MinBatchSize)
	viper.SetDefault("batchtts.batching.max_batch_size", defaults.Batching.MaxBatchSize)
	viper.SetDefault("batchtts.batching.preserve_order", defaults.Batching.PreserveOrder)
	viper.SetDefault("batchtts.batching.match", defaults.Batching.Match)

	viper.SetDefault("batchtts.pipeline.queue_size", defaults.Pipeline.QueueSize)
	viper.SetDefault("batchtts.pipeline.max_batch", defaults.Pipeline.MaxBatch)
	viper.SetDefault("batchtts.pipeline.flush_timeout", defaults.Pipeline.FlushTimeout.String())
	viper.SetDefault("batchtts.pipeline.submit_timeout", defaults.Pipeline.SubmitTimeout.String())
	viper.SetDefault("batchtts.pipeline.poll_interval", defaults.Pipeline.PollInterval.String())
	viper.SetDefault("batchtts.pipeline.join_timeout", defaults.Pipeline.JoinTimeout.String())
	viper.SetDefault("batchtts.pipeline.result_timeout", defaults.Pipeline.ResultTimeout.String())
	viper.SetDefault("batchtts.pipeline.workers", defaults.Pipeline.Workers)

	viper.SetDefault("batchtts.cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("batchtts.cache.memory_entries", defaults.Cache.MemoryEntries)
	viper.SetDefault("batchtts.cache.memory_bytes", defaults.Cache.MemoryBytes)
	viper.SetDefault("batchtts.cache.disk_bytes", defaults.Cache.DiskBytes)
	viper.SetDefault("batchtts.cache.ttl", defaults.Cache.TTL.String())

	viper.SetDefault("batchtts.mock.generation_delay", defaults.Mock.GenerationDelay.String())
	viper.SetDefault("batchtts.mock.native_batch", defaults.Mock.NativeBatch)
	viper.SetDefault("batchtts.mock.failure_rate", defaults.Mock.FailureRate)

	viper.SetDefault("batchtts.piper.sample_rate", defaults.Piper.SampleRate)
	viper.SetDefault("batchtts.piper.timeout", defaults.Piper.Timeout.String())
}
