package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes the waveform as a 16-bit mono PCM WAV stream.
func WriteWAV(w io.WriteSeeker, a *Audio) error {
	if a == nil {
		return fmt.Errorf("write wav: %w", ErrInvalidPCM)
	}
	enc := wav.NewEncoder(w, a.SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: a.SampleRate},
		Data:           a.Ints(),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// SaveWAV writes the waveform to a file at path.
func SaveWAV(path string, a *Audio) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteWAV(f, a); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
