package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/batchtts/internal/queue"
	"github.com/dgnsrekt/batchtts/tts/batch"
)

type counters struct {
	submitted      atomic.Int64
	rejected       atomic.Int64
	completed      atomic.Int64
	failed         atomic.Int64
	aborted        atomic.Int64
	flushes        atomic.Int64
	sizeFlushes    atomic.Int64
	timeoutFlushes atomic.Int64
	drainFlushes   atomic.Int64

	preprocessNanos  atomic.Int64
	synthesisNanos   atomic.Int64
	postprocessNanos atomic.Int64
	latencyNanos     atomic.Int64
}

// Snapshot is a read-only view of pipeline telemetry.
type Snapshot struct {
	RunID string

	Submitted int64
	Rejected  int64 // submissions refused: queue full, duplicate id, shutdown
	Completed int64 // delivered with audio
	Failed    int64 // delivered with a placeholder
	Aborted   int64 // reported failed by shutdown
	Pending   int

	Flushes        int64
	SizeFlushes    int64
	TimeoutFlushes int64
	DrainFlushes   int64

	PreprocessTime  time.Duration
	SynthesisTime   time.Duration
	PostprocessTime time.Duration
	// TotalLatency sums submit-to-delivery time over delivered tasks.
	TotalLatency time.Duration

	Intake      queue.Stats
	Synthesis   queue.Stats
	Postprocess queue.Stats
	Results     queue.Stats

	Executor batch.Snapshot
}

// Delivered returns the number of results handed to the results queue.
func (s Snapshot) Delivered() int64 {
	return s.Completed + s.Failed
}

// AverageLatency returns the mean submit-to-delivery time.
func (s Snapshot) AverageLatency() time.Duration {
	n := s.Delivered()
	if n == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(n)
}

// AverageFlushSize returns the mean number of tasks per flush.
func (s Snapshot) AverageFlushSize() float64 {
	if s.Flushes == 0 {
		return 0
	}
	return float64(s.Delivered()+s.Aborted) / float64(s.Flushes)
}

// Stats returns current telemetry. Reading it has no side effects.
func (p *Pipeline) Stats() Snapshot {
	pending := 0
	p.pending.Range(func(_, _ any) bool {
		pending++
		return true
	})

	return Snapshot{
		RunID:           p.runID,
		Submitted:       p.stats.submitted.Load(),
		Rejected:        p.stats.rejected.Load(),
		Completed:       p.stats.completed.Load(),
		Failed:          p.stats.failed.Load(),
		Aborted:         p.stats.aborted.Load(),
		Pending:         pending,
		Flushes:         p.stats.flushes.Load(),
		SizeFlushes:     p.stats.sizeFlushes.Load(),
		TimeoutFlushes:  p.stats.timeoutFlushes.Load(),
		DrainFlushes:    p.stats.drainFlushes.Load(),
		PreprocessTime:  time.Duration(p.stats.preprocessNanos.Load()),
		SynthesisTime:   time.Duration(p.stats.synthesisNanos.Load()),
		PostprocessTime: time.Duration(p.stats.postprocessNanos.Load()),
		TotalLatency:    time.Duration(p.stats.latencyNanos.Load()),
		Intake:          p.intake.Stats(),
		Synthesis:       p.synth.Stats(),
		Postprocess:     p.post.Stats(),
		Results:         p.results.Stats(),
		Executor:        p.exec.Stats(),
	}
}
