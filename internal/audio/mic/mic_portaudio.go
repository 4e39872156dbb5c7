//go:build with_portaudio

package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"github.com/nadzzz/aryad/internal/audio"
)

// framesPerBuffer is about 18ms at 44.1 kHz.
const framesPerBuffer = 800

// Init initialises PortAudio.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialising portaudio: %w", err)
	}
	return nil
}

// Terminate releases PortAudio.
func Terminate() error { return portaudio.Terminate() }

// Capture records from the default input device into rec until ctx is
// cancelled, then returns the finished recording.
func Capture(ctx context.Context, rec *audio.Recorder) (*audio.Recording, error) {
	buf := make([]float32, framesPerBuffer*rec.Channels())
	stream, err := portaudio.OpenDefaultStream(rec.Channels(), 0, float64(rec.SampleRate()), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("opening input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("starting input stream: %w", err)
	}
	defer stream.Stop()

	rec.Start()
	slog.Debug("microphone capture started", "sample_rate", rec.SampleRate(), "channels", rec.Channels())
	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Warn("microphone input overflowed")
				continue
			}
			_, _ = rec.Stop()
			return nil, fmt.Errorf("reading input stream: %w", err)
		}
		rec.Write(buf)
	}
	return rec.Stop()
}

// Play decodes a WAV clip and plays it on the default output device.
func Play(ctx context.Context, wav []byte) error {
	clip, err := audio.DecodeClip(wav)
	if err != nil {
		return err
	}

	out := make([]float32, framesPerBuffer*2)
	stream, err := portaudio.OpenDefaultStream(0, 2, float64(clip.SampleRate), framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("opening output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}
	defer stream.Stop()

	for pos := 0; pos < len(clip.Frames); pos += framesPerBuffer {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := clip.Frames[pos:min(pos+framesPerBuffer, len(clip.Frames))]
		for i := range framesPerBuffer {
			var f [2]float64
			if i < len(chunk) {
				f = chunk[i]
			}
			out[2*i] = float32(f[0])
			out[2*i+1] = float32(f[1])
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("writing output stream: %w", err)
		}
	}
	return nil
}
