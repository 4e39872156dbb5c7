// Package tts defines the interface for text-to-speech synthesis.
//
// aryad speaks its replies in the language the conversation is held in: the
// interpreter target when translating, otherwise the language identified on
// the user's utterance.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts: empty text")

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language selects the voice. Codes ("fr"), regional tags ("fr-CA") and
	// names ("french", "Français") are all accepted.
	Language string

	// Voice overrides automatic language-based voice selection.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the backend identifier (e.g., "piper").
	Name() string

	// Synthesize generates a WAV clip from the given text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio as a WAV file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int

	// Language is the ISO-639-1 code of the voice that was used.
	Language string
}
