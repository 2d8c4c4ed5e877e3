//go:build !nocgo

package playback

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/batchtts/tts/audio"
)

// oto allows a single context per process, fixed to one sample rate.
var (
	once       sync.Once
	otoCtx     *oto.Context
	otoRate    int
	otoInitErr error
)

func device(sampleRate int) (*oto.Context, error) {
	once.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		if runtime.GOOS == "darwin" {
			opts.BufferSize = 100 * time.Millisecond
		}

		c, ready, err := oto.NewContext(opts)
		if err != nil {
			otoInitErr = fmt.Errorf("%w: %w", ErrUnavailable, err)
			return
		}
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			otoInitErr = fmt.Errorf("%w: audio context initialization timeout", ErrUnavailable)
			return
		}
		otoCtx, otoRate = c, sampleRate
		log.Debug("audio context ready", "sample_rate", sampleRate, "buffer", opts.BufferSize)
	})
	if otoInitErr != nil {
		return nil, otoInitErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("%w: device opened at %d Hz, audio is %d Hz", ErrUnavailable, otoRate, sampleRate)
	}
	return otoCtx, nil
}

func play(ctx context.Context, a *audio.Audio) error {
	c, err := device(a.SampleRate)
	if err != nil {
		return err
	}

	p := c.NewPlayer(bytes.NewReader(a.ToPCM16()))
	defer p.Close() //nolint:errcheck
	p.Play()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
