//go:build nocgo

package playback

import (
	"context"

	"github.com/dgnsrekt/batchtts/tts/audio"
)

func play(context.Context, *audio.Audio) error {
	return ErrUnavailable
}
