// Package audio provides the waveform type produced by synthesis engines,
// silence placeholders and PCM/WAV encoding for delivered results.
package audio

import (
	"time"
)

// DefaultSampleRate is the sample rate used when an engine does not report one.
const DefaultSampleRate = 24000

// PlaceholderDuration is the length of the silent placeholder substituted for
// a chunk whose synthesis failed.
const PlaceholderDuration = time.Second

// Audio is a mono waveform with samples normalised to [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the waveform.
func (a *Audio) Duration() time.Duration {
	if a == nil || a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(a.Samples)) / float64(a.SampleRate) * float64(time.Second))
}

// Len returns the number of samples.
func (a *Audio) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Samples)
}

// IsSilent reports whether every sample is below the silence threshold.
func (a *Audio) IsSilent() bool {
	if a == nil {
		return true
	}
	for _, s := range a.Samples {
		if s > SilenceThreshold || s < -SilenceThreshold {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (a *Audio) Clone() *Audio {
	if a == nil {
		return nil
	}
	samples := make([]float32, len(a.Samples))
	copy(samples, a.Samples)
	return &Audio{Samples: samples, SampleRate: a.SampleRate}
}

// Silence generates a silent waveform of the given duration.
func Silence(d time.Duration, sampleRate int) *Audio {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(d.Seconds() * float64(sampleRate))
	if n < 0 {
		n = 0
	}
	return &Audio{Samples: make([]float32, n), SampleRate: sampleRate}
}

// Placeholder returns the fixed-duration silence used for failed chunks.
func Placeholder(sampleRate int) *Audio {
	return Silence(PlaceholderDuration, sampleRate)
}

// Concat joins waveforms end to end. Nil entries are skipped; the first
// non-nil waveform decides the sample rate.
func Concat(parts ...*Audio) *Audio {
	out := &Audio{}
	n := 0
	for _, p := range parts {
		if p == nil {
			continue
		}
		if out.SampleRate == 0 {
			out.SampleRate = p.SampleRate
		}
		n += len(p.Samples)
	}
	out.Samples = make([]float32, 0, n)
	for _, p := range parts {
		if p != nil {
			out.Samples = append(out.Samples, p.Samples...)
		}
	}
	if out.SampleRate == 0 {
		out.SampleRate = DefaultSampleRate
	}
	return out
}
