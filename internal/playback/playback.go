// Package playback plays synthesized audio on the default output device.
package playback

import (
	"context"
	"errors"

	"github.com/dgnsrekt/batchtts/tts/audio"
)

// ErrUnavailable is returned when no audio device can be opened.
var ErrUnavailable = errors.New("audio playback is not available")

// Play blocks until a has played through or ctx ends. Empty audio returns
// immediately without opening a device.
func Play(ctx context.Context, a *audio.Audio) error {
	if a.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return play(ctx, a)
}
