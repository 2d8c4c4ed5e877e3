package batch

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats is the executor's telemetry. Counters only grow; read them through
// Snapshot.
type Stats struct {
	chunks            atomic.Int64
	batchedChunks     atomic.Int64
	individualChunks  atomic.Int64
	groups            atomic.Int64
	batchCalls        atomic.Int64
	batchFallbacks    atomic.Int64
	serialCalls       atomic.Int64
	parameterSwitches atomic.Int64
	configures        atomic.Int64
	failures          atomic.Int64
	cacheHits         atomic.Int64
	engineNanos       atomic.Int64
	audioSamples      atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Chunks            int64
	BatchedChunks     int64
	IndividualChunks  int64
	Groups            int64
	BatchCalls        int64
	BatchFallbacks    int64
	SerialCalls       int64
	ParameterSwitches int64
	Configures        int64
	Failures          int64
	CacheHits         int64
	EngineTime        time.Duration
	AudioSamples      int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Chunks:            s.chunks.Load(),
		BatchedChunks:     s.batchedChunks.Load(),
		IndividualChunks:  s.individualChunks.Load(),
		Groups:            s.groups.Load(),
		BatchCalls:        s.batchCalls.Load(),
		BatchFallbacks:    s.batchFallbacks.Load(),
		SerialCalls:       s.serialCalls.Load(),
		ParameterSwitches: s.parameterSwitches.Load(),
		Configures:        s.configures.Load(),
		Failures:          s.failures.Load(),
		CacheHits:         s.cacheHits.Load(),
		EngineTime:        time.Duration(s.engineNanos.Load()),
		AudioSamples:      s.audioSamples.Load(),
	}
}

// EngineCalls returns the number of engine round trips.
func (s Snapshot) EngineCalls() int64 {
	return s.BatchCalls + s.SerialCalls
}

// BatchPercentage returns the share of chunks executed as group members.
func (s Snapshot) BatchPercentage() float64 {
	if s.Chunks == 0 {
		return 0
	}
	return float64(s.BatchedChunks) / float64(s.Chunks) * 100
}

// String renders a human-readable report line.
func (s Snapshot) String() string {
	return fmt.Sprintf("%s chunks (%s batched in %s groups, %s individual), %s engine calls, %s parameter switches, %s failures, %s cache hits, engine time %s",
		humanize.Comma(s.Chunks),
		humanize.FormatFloat("#,###.#", s.BatchPercentage())+"%",
		humanize.Comma(s.Groups),
		humanize.Comma(s.IndividualChunks),
		humanize.Comma(s.EngineCalls()),
		humanize.Comma(s.ParameterSwitches),
		humanize.Comma(s.Failures),
		humanize.Comma(s.CacheHits),
		s.EngineTime.Round(time.Millisecond),
	)
}
