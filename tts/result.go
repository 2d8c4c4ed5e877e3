package tts

import (
	"time"

	"github.com/dgnsrekt/batchtts/tts/audio"
)

// Tier identifies which execution path produced a result.
type Tier int

const (
	// TierNone means the result never reached the engine.
	TierNone Tier = iota
	// TierBatch is a native multi-text engine call.
	TierBatch
	// TierSerial is a single-text call reusing engine state.
	TierSerial
	// TierIsolated is a per-chunk failure replaced by a placeholder.
	TierIsolated
	// TierCache is a result served from the audio cache.
	TierCache
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierBatch:
		return "batch"
	case TierSerial:
		return "serial"
	case TierIsolated:
		return "isolated"
	case TierCache:
		return "cache"
	default:
		return "unknown"
	}
}

// ResultMeta describes how a result was produced.
type ResultMeta struct {
	Tier      Tier
	GroupSize int
	Duration  time.Duration // wall time spent producing the result
	Boundary  string
}

// Result is the outcome of synthesizing one chunk. Audio is nil only when
// synthesis irrecoverably failed; Placeholder then carries the silent
// substitute and Err the cause.
type Result struct {
	TaskID      string
	Index       int
	Audio       *audio.Audio
	Placeholder *audio.Audio
	Err         error
	Meta        ResultMeta
}

// Failed reports whether synthesis failed for this result.
func (r Result) Failed() bool {
	return r.Audio == nil
}

// Playable returns the audio to hand to assembly: the real waveform when
// present, otherwise the placeholder.
func (r Result) Playable() *audio.Audio {
	if r.Audio != nil {
		return r.Audio
	}
	return r.Placeholder
}

// FailedResult builds a failure record with a placeholder at sampleRate.
func FailedResult(taskID string, index int, err error, sampleRate int) Result {
	return Result{
		TaskID:      taskID,
		Index:       index,
		Placeholder: audio.Placeholder(sampleRate),
		Err:         err,
		Meta:        ResultMeta{Tier: TierIsolated},
	}
}
