// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The rhasspy/wyoming-piper
// container exposes the Wyoming protocol on TCP port 10200.
//
// Wyoming event format:
//
//	{"type": "...", "data_length": N, "payload_length": M}\n
//	<N bytes of JSON data>      (if data_length > 0)
//	<M bytes of payload>        (if payload_length > 0)
//
// Small events may carry "data" inline in the header instead.
package piper

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/aryad/internal/audio"
	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/lang"
	"github.com/nadzzz/aryad/internal/tts"
)

// defaultVoices maps ISO-639-1 language codes to Piper voice model names.
var defaultVoices = map[string]string{
	"en": "en_US-lessac-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"de": "de_DE-thorsten-medium",
	"it": "it_IT-riccardo-x_low",
	"pt": "pt_BR-faber-medium",
	"nl": "nl_NL-mls-medium",
	"pl": "pl_PL-darkman-medium",
	"ru": "ru_RU-ruslan-medium",
	"ar": "ar_JO-kareem-medium",
	"tr": "tr_TR-dfki-medium",
	"zh": "zh_CN-huayan-medium",
}

const (
	dialTimeout    = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint        string            // default host:port of the Piper Wyoming server
	endpoints       map[string]string // language -> host:port for per-language Piper instances
	voices          map[string]string // language -> voice name
	defaultLanguage string
}

// New creates a new Piper synthesizer from config. defaultLanguage is used
// when a request names no language or one without a voice.
func New(cfg config.PiperConfig, defaultLanguage string) *Synthesizer {
	voices := make(map[string]string, len(defaultVoices)+len(cfg.Voices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[lang.Normalize(k)] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for l, ep := range cfg.Endpoints {
		endpoints[lang.Normalize(l)] = cleanEndpoint(ep)
	}

	def := lang.Normalize(defaultLanguage)
	if def == "" {
		def = "en"
	}

	return &Synthesizer{
		endpoint:        cleanEndpoint(cfg.Endpoint),
		endpoints:       endpoints,
		voices:          voices,
		defaultLanguage: def,
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	return strings.TrimPrefix(ep, "http://")
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "piper" }

// resolve picks the language, voice and endpoint for a request.
func (s *Synthesizer) resolve(opts tts.SynthesizeOpts) (language, voice, endpoint string) {
	language = lang.Normalize(opts.Language)
	if _, ok := s.voices[language]; !ok && opts.Voice == "" {
		if language != "" {
			slog.Warn("no piper voice for language, using default", "language", language, "default", s.defaultLanguage)
		}
		language = s.defaultLanguage
	}

	voice = opts.Voice
	if voice == "" {
		voice = s.voices[language]
	}
	if voice == "" {
		voice = s.voices["en"]
	}

	endpoint = s.endpoints[language]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	return language, voice, endpoint
}

// Synthesize sends text to the Piper server and returns synthesized audio as WAV.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	language, voice, endpoint := s.resolve(opts)
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", language)
	}

	slog.Debug("piper synthesize", "text_length", len(text), "voice", voice, "language", language, "endpoint", endpoint)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(requestTimeout))
	}

	synth := event{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": voice},
		},
	}
	if err := writeEvent(conn, synth, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// audio-start → audio-chunk* → audio-stop
	var (
		pcm        []byte
		sampleRate = 22050
		channels   = 1
		width      = 2
	)
	r := bufio.NewReader(conn)
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			sampleRate = intField(evt.Data, "rate", sampleRate)
			channels = intField(evt.Data, "channels", channels)
			width = intField(evt.Data, "width", width)
			slog.Debug("piper audio-start", "rate", sampleRate, "channels", channels, "width", width)

		case "audio-chunk":
			pcm = append(pcm, payload...)

		case "audio-stop":
			slog.Debug("piper audio-stop", "pcm_bytes", len(pcm))
			samples, err := audio.PCMToInts(pcm, width)
			if err != nil {
				return nil, err
			}
			wav, err := audio.EncodeWAV(samples, sampleRate, channels, width*8)
			if err != nil {
				return nil, err
			}
			return &tts.SynthesizeResult{
				Audio:       wav,
				ContentType: "audio/wav",
				SampleRate:  sampleRate,
				Channels:    channels,
				Language:    language,
			}, nil

		case "error":
			msg := "unknown error"
			if t, ok := evt.Data["text"].(string); ok {
				msg = t
			}
			return nil, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

// Close is a no-op; connections are per-request.
func (s *Synthesizer) Close() error { return nil }

func intField(data map[string]any, key string, def int) int {
	if v, ok := data[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

// --- Wyoming protocol helpers ---

type event struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// writeEvent sends a Wyoming event. Data is carried as a separate block after
// the header line.
func writeEvent(w io.Writer, evt event, payload []byte) error {
	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
	}
	header, err := json.Marshal(event{
		Type:          evt.Type,
		DataLength:    len(data),
		PayloadLength: len(payload),
	})
	if err != nil {
		return fmt.Errorf("marshalling event header: %w", err)
	}

	header = append(header, '\n')
	for _, b := range [][]byte{header, data, payload} {
		if len(b) == 0 {
			continue
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// readEvent reads one Wyoming event.
func readEvent(r *bufio.Reader) (*event, []byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var evt event
	if err := json.Unmarshal(line, &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling header: %w", err)
	}

	if evt.DataLength > 0 {
		buf := make([]byte, evt.DataLength)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, nil, fmt.Errorf("reading data: %w", err)
		}
		var extra map[string]any
		if err := json.Unmarshal(buf, &extra); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling data: %w", err)
		}
		if evt.Data == nil {
			evt.Data = extra
		} else {
			for k, v := range extra {
				evt.Data[k] = v
			}
		}
	}

	var payload []byte
	if evt.PayloadLength > 0 {
		payload = make([]byte, evt.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}
