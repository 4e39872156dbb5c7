//go:build !with_portaudio

package mic

import (
	"context"

	"github.com/nadzzz/aryad/internal/audio"
)

func Init() error { return ErrUnavailable }

func Terminate() error { return nil }

func Capture(context.Context, *audio.Recorder) (*audio.Recording, error) {
	return nil, ErrUnavailable
}

func Play(context.Context, []byte) error { return ErrUnavailable }
