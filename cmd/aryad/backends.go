package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/nadzzz/aryad/internal/agent"
	"github.com/nadzzz/aryad/internal/assistant"
	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/langid"
	"github.com/nadzzz/aryad/internal/llm"
	"github.com/nadzzz/aryad/internal/llm/gemini"
	localllm "github.com/nadzzz/aryad/internal/llm/local"
	openaillm "github.com/nadzzz/aryad/internal/llm/openai"
	"github.com/nadzzz/aryad/internal/observe"
	"github.com/nadzzz/aryad/internal/stt"
	openaistt "github.com/nadzzz/aryad/internal/stt/openai"
	"github.com/nadzzz/aryad/internal/stt/whisper"
	"github.com/nadzzz/aryad/internal/transport"
	grpctransport "github.com/nadzzz/aryad/internal/transport/grpc"
	httptransport "github.com/nadzzz/aryad/internal/transport/http"
	mqtttransport "github.com/nadzzz/aryad/internal/transport/mqtt"
	"github.com/nadzzz/aryad/internal/tts"
	"github.com/nadzzz/aryad/internal/tts/piper"
)

// newExtractor builds the MFCC front end from the langid section.
func newExtractor(cfg config.LangIDConfig) (*langid.Extractor, error) {
	ec := langid.DefaultExtractorConfig()
	if cfg.SampleRate > 0 {
		ec.SampleRate = cfg.SampleRate
	}
	if cfg.MaxDuration > 0 {
		ec.MaxDuration = cfg.MaxDuration
	}
	if cfg.NumMFCC > 0 {
		ec.NumMFCC = cfg.NumMFCC
	}
	return langid.NewExtractor(ec)
}

// newDetector loads the language models of dirs. An empty store is not an
// error: detection then fails per request with langid.ErrNoModels.
func newDetector(cfg config.LangIDConfig, metrics *observe.Metrics, dirs ...string) (*langid.Detector, error) {
	ext, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		dirs = []string{cfg.ModelsDir}
	}
	store := langid.Load(langid.LoadOptions{
		Extension:  cfg.Extension,
		Duplicates: langid.DuplicatePolicy(cfg.Duplicates),
		Metrics:    metrics,
	}, dirs...)
	slog.Info("language models loaded", "languages", store.Labels(), "skipped", len(store.Issues()))
	return langid.NewDetector(store, ext, langid.WithMetrics(metrics)), nil
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.Agent.Backend {
	case "gemini":
		p, err := gemini.New(ctx, cfg.LLM.Gemini)
		if err != nil {
			return nil, err
		}
		slog.Info("using Gemini LLM", "model", cfg.LLM.Gemini.Model)
		return p, nil
	case "openai":
		p, err := openaillm.New(cfg.LLM.OpenAI)
		if err != nil {
			return nil, err
		}
		slog.Info("using OpenAI LLM", "model", cfg.LLM.OpenAI.CompletionModel)
		return p, nil
	case "local":
		slog.Info("using local LLM", "endpoint", cfg.LLM.Local.Endpoint, "model", cfg.LLM.Local.Model)
		return localllm.New(cfg.LLM.Local), nil
	default:
		return nil, fmt.Errorf("unknown agent backend %q", cfg.Agent.Backend)
	}
}

func newTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	switch cfg.STT.Backend {
	case "openai":
		slog.Info("using OpenAI speech recognition", "model", cfg.LLM.OpenAI.TranscriptionModel)
		t, err := openaistt.New(cfg.LLM.OpenAI)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "whisper":
		slog.Info("using whisper speech recognition", "endpoint", cfg.STT.Whisper.Endpoint, "type", cfg.STT.Whisper.Type)
		return whisper.New(cfg.STT.Whisper, cfg.STT.Language), nil
	default:
		return nil, fmt.Errorf("unknown stt backend %q", cfg.STT.Backend)
	}
}

func newSynthesizer(cfg *config.Config) tts.Synthesizer {
	if !cfg.TTS.Enabled {
		slog.Info("text-to-speech disabled")
		return nil
	}
	slog.Info("using Piper TTS", "endpoint", cfg.TTS.Piper.Endpoint, "languages", len(cfg.TTS.Piper.Endpoints))
	return piper.New(cfg.TTS.Piper, cfg.TTS.DefaultLanguage)
}

func newAgentFactory(cfg *config.Config, provider llm.Provider, metrics *observe.Metrics) assistant.AgentFactory {
	identity := cfg.Agent.Identity
	if identity == "" {
		identity = agent.LoadIdentity(cfg.Agent.IdentityFile)
	}
	opts := agent.Options{
		Identity:       identity,
		Mode:           agent.Mode(cfg.Agent.Mode),
		TargetLanguage: cfg.Agent.TargetLanguage,
		Temperature:    cfg.Agent.Temperature,
		HistorySize:    cfg.Agent.HistorySize,
		Metrics:        metrics,
	}
	return func() *agent.Agent { return agent.New(provider, opts) }
}

func newTransports(cfg config.TransportsConfig) []transport.Transport {
	var transports []transport.Transport
	if cfg.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.GRPC.Port))
	}
	if cfg.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.HTTP.Port))
	}
	if cfg.MQTT.Enabled {
		transports = append(transports, mqtttransport.New(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID))
	}
	return transports
}

// pipeline is an assistant together with the resources it does not own.
type pipeline struct {
	*assistant.Assistant
	detector *langid.Detector
	provider llm.Provider
}

// Close releases the assistant's backends and the LLM provider.
func (p *pipeline) Close() error {
	var result *multierror.Error
	if err := p.Assistant.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := p.provider.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing llm provider: %w", err))
	}
	return result.ErrorOrNil()
}

// newPipeline wires every configured backend into an assistant.
func newPipeline(ctx context.Context, cfg *config.Config, transports []transport.Transport, metrics *observe.Metrics) (*pipeline, error) {
	var detector *langid.Detector
	if cfg.LangID.Enabled {
		d, err := newDetector(cfg.LangID, metrics)
		if err != nil {
			return nil, fmt.Errorf("language identification: %w", err)
		}
		detector = d
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("speech recognition: %w", err)
	}

	asst := assistant.New(assistant.Options{
		Detector:        detector,
		Transcriber:     transcriber,
		Synthesizer:     newSynthesizer(cfg),
		NewAgent:        newAgentFactory(cfg, provider, metrics),
		Transports:      transports,
		Targets:         cfg.Targets,
		STTLanguage:     cfg.STT.Language,
		DefaultLanguage: cfg.TTS.DefaultLanguage,
		MaxSessions:     cfg.Agent.MaxSessions,
		SessionTTL:      cfg.Agent.SessionTTL,
		Metrics:         metrics,
	})
	return &pipeline{Assistant: asst, detector: detector, provider: provider}, nil
}
