// Package message defines the core data types flowing through the aryad pipeline.
package message

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// ResponseMode controls what output the caller wants back.
type ResponseMode string

const (
	// ResponseModeNone suppresses the reply. Only routing results are returned.
	ResponseModeNone ResponseMode = "none"

	// ResponseModeText returns the reply as text.
	ResponseModeText ResponseMode = "text"

	// ResponseModeAudio returns the TTS-synthesized reply only (no text).
	ResponseModeAudio ResponseMode = "audio"

	// ResponseModeTextAudio returns both text and synthesized audio.
	ResponseModeTextAudio ResponseMode = "text+audio"
)

// Message represents an incoming request from any transport.
type Message struct {
	// ID is a unique identifier for this message (UUID).
	ID string `json:"id"`

	// Source identifies the sender (e.g., "cli", "phone-alice"). Conversation
	// history is kept per source.
	Source string `json:"source"`

	// Audio is the raw audio payload. Nil if the message is text-only.
	Audio []byte `json:"audio,omitempty"`

	// ContentType is the MIME type of the audio (e.g., "audio/wav", "audio/mpeg").
	ContentType string `json:"content_type,omitempty"`

	// Text is typed input. Ignored when Audio is present.
	Text string `json:"text,omitempty"`

	// Instruction tells aryad how to answer and where to route the result.
	Instruction Instruction `json:"instruction"`

	// Timestamp is when the message was received by aryad.
	Timestamp time.Time `json:"timestamp"`
}

// New creates a text message with a fresh ID.
func New(source, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Source:    source,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize fills in the ID, source and timestamp when a transport left them empty.
func (m *Message) Normalize(defaultSource string) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Source == "" {
		m.Source = defaultSource
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
}

// HasAudio returns true if the message contains an audio payload.
func (m *Message) HasAudio() bool {
	return len(m.Audio) > 0
}

// Instruction describes how to process and route a message.
type Instruction struct {
	// Mode switches the session before the message is answered:
	// "chat" or "interpreter". Empty keeps the current mode.
	Mode string `json:"mode,omitempty"`

	// TargetLanguage is the language to translate into in interpreter mode.
	TargetLanguage string `json:"target_language,omitempty"`

	// Targets lists services that should receive a copy of the result.
	// The original sender always receives the response regardless of this list.
	Targets []Target `json:"targets,omitempty"`

	// ResponseMode controls the reply output:
	//   "none"       no reply
	//   "text"       text reply only
	//   "audio"      TTS-synthesized audio only
	//   "text+audio" both
	// Defaults to "text" when TTS is disabled, "text+audio" when TTS is enabled.
	ResponseMode ResponseMode `json:"response_mode,omitempty"`

	// Prompt is vocabulary passed to speech recognition (names, jargon).
	Prompt string `json:"prompt,omitempty"`
}

// Target defines a downstream service that should receive results.
type Target struct {
	// ServiceName identifies the target. A name matching a configured target
	// inherits its endpoint, protocol and token.
	ServiceName string `json:"service_name"`

	// Endpoint is the address to reach this target (e.g., "http://hooks.local/aryad").
	Endpoint string `json:"endpoint,omitempty"`

	// Protocol is the protocol to use ("http", "grpc", "mqtt").
	Protocol string `json:"protocol,omitempty"`

	// Token is a bearer credential. Only ever set from configuration.
	Token string `json:"-"`
}

// LanguageScore is one language model's log-likelihood for an utterance.
type LanguageScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Detection is the outcome of spoken-language identification.
type Detection struct {
	// Label is the best-scoring language model.
	Label string `json:"label"`

	// Language is Label normalized to ISO-639-1 where possible.
	Language string `json:"language,omitempty"`

	// Scores lists every model's score, best first.
	Scores []LanguageScore `json:"scores"`
}

// Result is the outcome of processing a message through the pipeline.
type Result struct {
	// MessageID is the original message ID.
	MessageID string `json:"message_id"`

	// Source echoes the sender.
	Source string `json:"source,omitempty"`

	// Mode is the session mode the reply was produced in.
	Mode string `json:"mode,omitempty"`

	// Transcript is the text produced by speech recognition (empty for text input).
	Transcript string `json:"transcript,omitempty"`

	// Language is the ISO-639-1 code of the user's utterance.
	Language string `json:"language,omitempty"`

	// Detection holds the spoken-language identification, when it ran.
	Detection *Detection `json:"detection,omitempty"`

	// ResponseText is the assistant's reply.
	// Populated when response_mode is "text" or "text+audio".
	ResponseText string `json:"response_text,omitempty"`

	// ResponseLanguage is the language the reply was voiced in.
	ResponseLanguage string `json:"response_language,omitempty"`

	// ResponseAudio is the TTS-synthesized audio as a base64-encoded string.
	// Populated when response_mode is "audio" or "text+audio".
	ResponseAudio string `json:"response_audio,omitempty"`

	// ResponseContentType is the MIME type of ResponseAudio (e.g., "audio/wav").
	ResponseContentType string `json:"response_content_type,omitempty"`

	// RoutedTo lists the targets that received the result.
	RoutedTo []string `json:"routed_to,omitempty"`

	// Error is set if processing failed at any stage.
	Error string `json:"error,omitempty"`
}

// SetResponseAudioBytes base64-encodes raw audio bytes into ResponseAudio.
func (r *Result) SetResponseAudioBytes(audio []byte) {
	if len(audio) > 0 {
		r.ResponseAudio = base64.StdEncoding.EncodeToString(audio)
	}
}

// ResponseAudioBytes decodes ResponseAudio.
func (r *Result) ResponseAudioBytes() ([]byte, error) {
	if r.ResponseAudio == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(r.ResponseAudio)
}
