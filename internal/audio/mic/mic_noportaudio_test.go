//go:build !with_portaudio

package mic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nadzzz/aryad/internal/audio"
)

func TestWithoutPortAudio(t *testing.T) {
	require.ErrorIs(t, Init(), ErrUnavailable)
	require.NoError(t, Terminate())

	_, err := Capture(context.Background(), audio.NewRecorder(16000, 1))
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, Play(context.Background(), nil), ErrUnavailable)
}
