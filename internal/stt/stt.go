// Package stt defines the interface for speech-to-text transcription.
//
// aryad ships two backends: OpenAI (cloud, via openai-go) and Whisper
// (self-hosted, OpenAI-compatible or whisper-asr-webservice).
package stt

import (
	"context"
	"errors"
	"strings"
)

// ErrNoSpeech is returned when the audio contains nothing recognisable.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Opts controls transcription behavior.
type Opts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr") to guide transcription.
	Language string

	// Prompt provides context to improve recognition of domain-specific terms.
	Prompt string

	// Model overrides the default transcription model.
	Model string
}

// Result holds the transcription.
type Result struct {
	Text string `json:"text"`

	// Language is the ISO-639-1 code reported by the backend, if any.
	Language string `json:"language,omitempty"`
}

// Transcriber converts audio bytes to text.
type Transcriber interface {
	// Name returns the backend identifier (e.g., "openai", "whisper").
	Name() string

	// Transcribe converts audio bytes to text.
	Transcribe(ctx context.Context, audio []byte, contentType string, opts Opts) (*Result, error)

	// Close releases any resources held by the transcriber.
	Close() error
}

// ExtFromContentType returns the file extension backends expect for a MIME type.
func ExtFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "m4a"):
		return ".m4a"
	default:
		return ".wav"
	}
}
