package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// SilenceThreshold is the amplitude below which a sample counts as silent.
const SilenceThreshold = 0.01

// ErrInvalidPCM is returned when encoded PCM data cannot be decoded.
var ErrInvalidPCM = errors.New("invalid PCM data")

// ToPCM16 converts the waveform to little-endian signed 16-bit PCM.
// Samples outside [-1, 1] are clipped.
func (a *Audio) ToPCM16() []byte {
	if a == nil {
		return nil
	}
	out := make([]byte, len(a.Samples)*2)
	for i, s := range a.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// FromPCM16 decodes little-endian signed 16-bit mono PCM.
func FromPCM16(data []byte, sampleRate int) (*Audio, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM16 length %d", ErrInvalidPCM, len(data))
	}
	a := &Audio{SampleRate: sampleRate, Samples: make([]float32, len(data)/2)}
	for i := range a.Samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:])) //nolint:gosec
		a.Samples[i] = float32(v) / math.MaxInt16
	}
	return a, nil
}

// Ints returns the samples as 16-bit integer values widened to int.
func (a *Audio) Ints() []int {
	if a == nil {
		return nil
	}
	out := make([]int, len(a.Samples))
	for i, s := range a.Samples {
		out[i] = int(floatToInt16(s))
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * math.MaxInt16))
}

// Encode serialises the waveform losslessly: a 4-byte sample rate followed by
// float32 samples, all little-endian.
func (a *Audio) Encode() []byte {
	if a == nil {
		return nil
	}
	out := make([]byte, 4+len(a.Samples)*4)
	binary.LittleEndian.PutUint32(out, uint32(a.SampleRate))
	for i, s := range a.Samples {
		binary.LittleEndian.PutUint32(out[4+i*4:], math.Float32bits(s))
	}
	return out
}

// Decode reverses Encode.
func Decode(data []byte) (*Audio, error) {
	if len(data) < 4 || (len(data)-4)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPCM, len(data))
	}
	a := &Audio{
		SampleRate: int(binary.LittleEndian.Uint32(data)),
		Samples:    make([]float32, (len(data)-4)/4),
	}
	for i := range a.Samples {
		a.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+i*4:]))
	}
	return a, nil
}
