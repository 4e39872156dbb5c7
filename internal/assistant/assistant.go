// Package assistant implements the core message pipeline.
//
// The assistant receives messages from transports, identifies the spoken
// language, transcribes the audio, asks the session's agent for a reply,
// voices it, then forwards the result to any requested targets. The sender
// always receives the response.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nadzzz/aryad/internal/agent"
	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/lang"
	"github.com/nadzzz/aryad/internal/langid"
	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/observe"
	"github.com/nadzzz/aryad/internal/stt"
	"github.com/nadzzz/aryad/internal/transport"
	"github.com/nadzzz/aryad/internal/tts"
)

// ErrDetectionDisabled is returned by Detect when no detector is configured.
var ErrDetectionDisabled = fmt.Errorf("%w: language identification is disabled", transport.ErrUnsupported)

// NoSpeechReply is the user-facing error for unrecognised speech.
const NoSpeechReply = "I did not understand, please try again"

// Session limits used when Options leaves them zero.
const (
	DefaultMaxSessions = 1024
	DefaultSessionTTL  = time.Hour
)

// AgentFactory creates the agent for a new session.
type AgentFactory func() *agent.Agent

// Options wires the pipeline stages. Detector, Transcriber and Synthesizer
// may be nil to disable the stage.
type Options struct {
	Detector    *langid.Detector
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
	NewAgent    AgentFactory

	// Transports available for forwarding results to targets.
	Transports []transport.Transport

	// Targets are named destinations from configuration.
	Targets map[string]config.Target

	// STTLanguage forces the transcription language. Empty lets the detected
	// language (or the backend) decide.
	STTLanguage string

	// DefaultLanguage voices replies when no language is known.
	DefaultLanguage string

	// MaxSessions caps live sessions, dropping the least recently used.
	// SessionTTL drops sessions idle for longer. Zero selects the default.
	MaxSessions int
	SessionTTL  time.Duration

	Metrics *observe.Metrics
}

// Assistant is the central pipeline. It is safe for concurrent use.
type Assistant struct {
	detector    *langid.Detector
	transcriber stt.Transcriber
	synthesizer tts.Synthesizer
	newAgent    AgentFactory
	transports  map[string]transport.Transport
	targets     map[string]config.Target
	sttLanguage string
	defaultLang string
	metrics     *observe.Metrics

	mu       sync.Mutex
	sessions *expirable.LRU[string, *agent.Agent]
}

// New creates an Assistant.
func New(opts Options) *Assistant {
	tm := make(map[string]transport.Transport, len(opts.Transports))
	for _, t := range opts.Transports {
		tm[t.Name()] = t
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.Default()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	defaultLang := lang.Normalize(opts.DefaultLanguage)
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &Assistant{
		detector:    opts.Detector,
		transcriber: opts.Transcriber,
		synthesizer: opts.Synthesizer,
		newAgent:    opts.NewAgent,
		transports:  tm,
		targets:     opts.Targets,
		sttLanguage: lang.Normalize(opts.STTLanguage),
		defaultLang: defaultLang,
		metrics:     opts.Metrics,
		sessions:    expirable.NewLRU(opts.MaxSessions, func(source string, _ *agent.Agent) {
			slog.Debug("session dropped", "source", source)
		}, opts.SessionTTL),
	}
}

// session returns the agent for source, creating it on first use. Every
// call restarts the session's idle timer.
func (a *Assistant) session(source string) *agent.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	ag, ok := a.sessions.Get(source)
	if !ok {
		ag = a.newAgent()
		slog.Debug("session created", "source", source)
	}
	a.sessions.Add(source, ag)
	return ag
}

// Sessions returns the number of live sessions.
func (a *Assistant) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions.Len()
}

// resolveResponseMode determines the effective ResponseMode for a message.
// If the caller didn't specify one, the default depends on whether TTS is available.
func (a *Assistant) resolveResponseMode(mode message.ResponseMode) message.ResponseMode {
	switch mode {
	case message.ResponseModeNone, message.ResponseModeText,
		message.ResponseModeAudio, message.ResponseModeTextAudio:
		return mode
	default:
		if a.synthesizer != nil {
			return message.ResponseModeTextAudio
		}
		return message.ResponseModeText
	}
}

// wantText returns true if the response mode includes text output.
func wantText(mode message.ResponseMode) bool {
	return mode == message.ResponseModeText || mode == message.ResponseModeTextAudio
}

// wantAudio returns true if the response mode includes audio output.
func wantAudio(mode message.ResponseMode) bool {
	return mode == message.ResponseModeAudio || mode == message.ResponseModeTextAudio
}

// Handle processes a single message through the full pipeline.
// Stage failures are reported in Result.Error; the returned error is
// reserved for failures the transport should surface as its own.
func (a *Assistant) Handle(ctx context.Context, msg *message.Message) (*message.Result, error) {
	start := time.Now()
	via := transport.NameFrom(ctx)
	logger := slog.With("message_id", msg.ID, "source", msg.Source, "transport", via)

	result, err := a.handle(ctx, logger, msg)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case result.Error != "":
		status = "failed"
	}
	a.metrics.RecordMessage(ctx, via, status)
	logger.Info("message handled", "status", status, "duration", time.Since(start), "routed_to", len(result.RoutedTo))
	return result, err
}

func (a *Assistant) handle(ctx context.Context, logger *slog.Logger, msg *message.Message) (*message.Result, error) {
	respMode := a.resolveResponseMode(msg.Instruction.ResponseMode)
	result := &message.Result{MessageID: msg.ID, Source: msg.Source}
	ag := a.session(msg.Source)

	// Step 1: apply a requested mode switch.
	if msg.Instruction.Mode != "" {
		if err := ag.SetMode(agent.Mode(msg.Instruction.Mode), msg.Instruction.TargetLanguage); err != nil {
			result.Error = fmt.Sprintf("mode switch failed: %v", err)
			return result, nil
		}
	}
	result.Mode = string(ag.Mode())
	logger.Info("message started", "mode", result.Mode, "response_mode", respMode)

	// Step 2: identify and transcribe audio, or take the typed text.
	var text string
	switch {
	case msg.HasAudio():
		if a.detector != nil {
			det, err := a.Detect(ctx, msg.Audio, msg.ContentType)
			if err != nil {
				logger.Warn("language identification failed, continuing", "error", err)
			} else {
				result.Detection = det
				result.Language = det.Language
			}
		}
		if a.transcriber == nil {
			result.Error = "speech recognition is disabled"
			return result, nil
		}
		res, err := a.transcribe(ctx, msg, result.Language)
		if errors.Is(err, stt.ErrNoSpeech) {
			result.Error = NoSpeechReply
			return result, nil
		}
		if err != nil {
			result.Error = fmt.Sprintf("transcription failed: %v", err)
			logger.Error("transcription failed", "error", err)
			return result, nil
		}
		text = res.Text
		result.Transcript = res.Text
		if result.Language == "" {
			result.Language = res.Language
		}
		logger.Info("transcription complete", "text_length", len(text), "language", result.Language)

	case strings.TrimSpace(msg.Text) != "":
		text = msg.Text
		logger.Debug("using text input directly")

	default:
		result.Error = "message has no audio and no text"
		return result, nil
	}

	// Step 3: ask the agent.
	reply, err := ag.Respond(ctx, text)
	if err != nil {
		result.Error = fmt.Sprintf("assistant reply failed: %v", err)
		logger.Error("agent reply failed", "error", err)
		return result, nil
	}

	// Step 4: populate the reply based on response_mode.
	if wantText(respMode) {
		result.ResponseText = reply
	}
	if wantAudio(respMode) && a.synthesizer != nil {
		a.speak(ctx, logger, result, reply, a.replyLanguage(ag, result.Language))
	}

	// Step 5: forward to targets.
	a.route(ctx, logger, result, msg.Instruction.Targets)
	return result, nil
}

// replyLanguage picks the voice language: the interpreter target, then the
// language the user spoke, then the default.
func (a *Assistant) replyLanguage(ag *agent.Agent, spoken string) string {
	if ag.Mode() == agent.ModeInterpreter {
		if target := lang.Normalize(ag.TargetLanguage()); target != "" {
			return target
		}
	}
	if spoken != "" {
		return spoken
	}
	return a.defaultLang
}

func (a *Assistant) transcribe(ctx context.Context, msg *message.Message, detected string) (*stt.Result, error) {
	language := a.sttLanguage
	if language == "" && len(detected) == 2 {
		// Model labels that do not map to an ISO code are not a usable hint.
		language = detected
	}
	start := time.Now()
	res, err := a.transcriber.Transcribe(ctx, msg.Audio, msg.ContentType, stt.Opts{
		Language: language,
		Prompt:   msg.Instruction.Prompt,
	})
	a.metrics.RecordStage(ctx, a.metrics.STTDuration, a.transcriber.Name(), stageStatus(err), time.Since(start).Seconds())
	return res, err
}

func (a *Assistant) speak(ctx context.Context, logger *slog.Logger, result *message.Result, text, language string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	logger.Debug("synthesizing response", "language", language, "text_length", len(text))
	start := time.Now()
	synth, err := a.synthesizer.Synthesize(ctx, text, tts.SynthesizeOpts{Language: language})
	a.metrics.RecordStage(ctx, a.metrics.TTSDuration, a.synthesizer.Name(), stageStatus(err), time.Since(start).Seconds())
	if err != nil {
		logger.Warn("TTS synthesis failed, continuing without audio", "error", err)
		return
	}
	result.SetResponseAudioBytes(synth.Audio)
	result.ResponseContentType = synth.ContentType
	result.ResponseLanguage = synth.Language
	if result.ResponseLanguage == "" {
		result.ResponseLanguage = language
	}
	logger.Info("TTS synthesis complete", "audio_bytes", len(synth.Audio), "language", result.ResponseLanguage)
}

// resolveTarget fills a target from configuration when it names one.
func (a *Assistant) resolveTarget(t message.Target) message.Target {
	cfg, ok := a.targets[t.ServiceName]
	if !ok {
		return t
	}
	if t.Endpoint == "" {
		t.Endpoint = cfg.Endpoint
	}
	if t.Protocol == "" {
		t.Protocol = cfg.Protocol
	}
	t.Token = cfg.Token
	return t
}

func (a *Assistant) route(ctx context.Context, logger *slog.Logger, result *message.Result, targets []message.Target) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error("marshalling result for targets", "error", err)
		return
	}

	for _, target := range targets {
		target = a.resolveTarget(target)
		t, ok := a.transports[target.Protocol]
		if !ok {
			logger.Warn("no transport for target protocol", "protocol", target.Protocol, "target", target.ServiceName)
			continue
		}
		if err := t.Send(ctx, target, payload); err != nil {
			logger.Error("failed to send to target", "target", target.ServiceName, "error", err)
			continue
		}
		result.RoutedTo = append(result.RoutedTo, target.ServiceName)
		logger.Info("routed to target", "target", target.ServiceName)
	}
}

// Detect identifies the language spoken in an audio payload.
func (a *Assistant) Detect(ctx context.Context, audio []byte, contentType string) (*message.Detection, error) {
	if a.detector == nil {
		return nil, ErrDetectionDisabled
	}
	decoded, err := langid.DecodeAudio(bytes.NewReader(audio), stt.ExtFromContentType(contentType))
	if err != nil {
		slog.Error("audio decode failed", "content_type", contentType, "error", err)
		return nil, err
	}
	res, err := a.detector.DetectAudio(ctx, decoded)
	if err != nil {
		return nil, err
	}
	det := &message.Detection{
		Label:    res.Label,
		Language: lang.Normalize(res.Label),
		Scores:   make([]message.LanguageScore, len(res.Scores)),
	}
	for i, s := range res.Scores {
		det.Scores[i] = message.LanguageScore{Label: s.Label, Score: s.LogLikelihood}
	}
	return det, nil
}

// SetMode switches the session of source to mode. target is required for
// interpreter mode.
func (a *Assistant) SetMode(ctx context.Context, source, mode, target string) error {
	ag := a.session(source)
	if err := ag.SetMode(agent.Mode(mode), target); err != nil {
		return err
	}
	slog.InfoContext(ctx, "session mode changed", "source", source, "mode", mode, "target_language", target)
	return nil
}

// Reset clears the conversation history of source.
func (a *Assistant) Reset(ctx context.Context, source string) error {
	a.mu.Lock()
	ag, ok := a.sessions.Peek(source)
	a.mu.Unlock()
	if ok {
		ag.Reset()
	}
	slog.InfoContext(ctx, "session history cleared", "source", source, "existed", ok)
	return nil
}

// Close releases the pipeline's backends.
func (a *Assistant) Close() error {
	var result *multierror.Error
	if a.transcriber != nil {
		if err := a.transcriber.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing transcriber: %w", err))
		}
	}
	if a.synthesizer != nil {
		if err := a.synthesizer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing synthesizer: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func stageStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
