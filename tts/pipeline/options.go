// Package pipeline schedules synthesis. Pipeline streams submitted tasks
// through preprocess, synthesize and postprocess stages joined by bounded
// queues; Processor runs a finite chunk list in one call. Collector restores
// submission order.
package pipeline

import (
	"time"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/batch"
)

// Options configures a Pipeline.
type Options struct {
	// QueueSize is the capacity of every inter-stage queue.
	QueueSize int
	// MaxBatch flushes the synthesize buffer once it holds this many tasks.
	MaxBatch int
	// FlushTimeout flushes a non-empty buffer once its oldest task has
	// waited this long.
	FlushTimeout time.Duration
	// SubmitTimeout bounds how long Submit waits for intake space.
	SubmitTimeout time.Duration
	// PollInterval bounds every blocking stage read.
	PollInterval time.Duration
	// JoinTimeout bounds the graceful part of Shutdown.
	JoinTimeout time.Duration

	// Grouping applies to each flushed buffer. PreserveOrder is always
	// forced on.
	Grouping batch.GroupOptions
	Cache    batch.Cache

	Preprocessor  tts.Preprocessor
	Postprocessor tts.Postprocessor
}

// DefaultOptions returns the documented scheduler defaults.
func DefaultOptions() Options {
	return Options{
		QueueSize:     16,
		MaxBatch:      8,
		FlushTimeout:  50 * time.Millisecond,
		SubmitTimeout: time.Second,
		PollInterval:  10 * time.Millisecond,
		JoinTimeout:   5 * time.Second,
		Grouping:      batch.DefaultGroupOptions(),
	}
}

// OptionsFromConfig builds options from validated configuration.
func OptionsFromConfig(cfg tts.Config) (Options, error) {
	grouping, err := batch.OptionsFromConfig(cfg.Batching)
	if err != nil {
		return Options{}, err
	}
	return Options{
		QueueSize:     cfg.Pipeline.QueueSize,
		MaxBatch:      cfg.Pipeline.MaxBatch,
		FlushTimeout:  cfg.Pipeline.FlushTimeout,
		SubmitTimeout: cfg.Pipeline.SubmitTimeout,
		PollInterval:  cfg.Pipeline.PollInterval,
		JoinTimeout:   cfg.Pipeline.JoinTimeout,
		Grouping:      grouping,
	}, nil
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.QueueSize < 1 {
		o.QueueSize = d.QueueSize
	}
	if o.MaxBatch < 1 {
		o.MaxBatch = d.MaxBatch
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = d.FlushTimeout
	}
	if o.SubmitTimeout < 0 {
		o.SubmitTimeout = d.SubmitTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.PollInterval > o.FlushTimeout {
		o.PollInterval = o.FlushTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = d.JoinTimeout
	}
	o.Grouping.PreserveOrder = true
	if o.Grouping.MinBatchSize < 1 {
		o.Grouping.MinBatchSize = d.Grouping.MinBatchSize
	}
	if o.Grouping.MaxBatchSize < 1 || o.Grouping.MaxBatchSize > o.MaxBatch {
		o.Grouping.MaxBatchSize = o.MaxBatch
	}
	return o
}
