// Package config handles loading and validating the aryad configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Config is the root configuration for the aryad daemon.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Transports TransportsConfig  `mapstructure:"transports"`
	LangID     LangIDConfig      `mapstructure:"langid"`
	Agent      AgentConfig       `mapstructure:"agent"`
	LLM        LLMConfig         `mapstructure:"llm"`
	STT        STTConfig         `mapstructure:"stt"`
	TTS        TTSConfig         `mapstructure:"tts"`
	Recorder   RecorderConfig    `mapstructure:"recorder"`
	Targets    map[string]Target `mapstructure:"targets"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// LangIDConfig configures spoken-language identification.
type LangIDConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ModelsDir   string  `mapstructure:"models_dir"`
	Extension   string  `mapstructure:"extension"`
	Duplicates  string  `mapstructure:"duplicates"` // "reject" or "override"
	SampleRate  int     `mapstructure:"sample_rate"`
	MaxDuration float64 `mapstructure:"max_duration"` // seconds
	NumMFCC     int     `mapstructure:"n_mfcc"`
}

// AgentConfig configures the conversational agent.
type AgentConfig struct {
	Backend        string  `mapstructure:"backend"` // "gemini", "openai" or "local"
	IdentityFile   string  `mapstructure:"identity_file"`
	Identity       string  `mapstructure:"identity"`
	Mode           string  `mapstructure:"mode"` // "chat" or "interpreter"
	TargetLanguage string  `mapstructure:"target_language"`
	Temperature    float64 `mapstructure:"temperature"`
	HistorySize    int     `mapstructure:"history_size"` // turns kept per session

	// MaxSessions caps live sessions; the least recently used is dropped.
	MaxSessions int           `mapstructure:"max_sessions"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"` // idle time before a session is dropped
}

// LLMConfig holds the settings for every LLM backend.
type LLMConfig struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Local  LocalConfig  `mapstructure:"local"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	APIKey string  `mapstructure:"api_key"`
	Model  string  `mapstructure:"model"`
	TopP   float64 `mapstructure:"top_p"`
	TopK   float64 `mapstructure:"top_k"`
}

// OpenAIConfig holds OpenAI API settings shared by the LLM and STT backends.
type OpenAIConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	CompletionModel    string `mapstructure:"completion_model"`
}

// LocalConfig holds self-hosted LLM settings.
type LocalConfig struct {
	Endpoint string `mapstructure:"endpoint"` // Ollama /api/generate or OpenAI-compatible /v1/chat/completions
	Model    string `mapstructure:"model"`    // e.g. "llama3.2:1b"
}

// STTConfig selects and configures speech-to-text.
type STTConfig struct {
	Backend  string        `mapstructure:"backend"`  // "openai" or "whisper"
	Language string        `mapstructure:"language"` // ISO-639-1 default language hint
	Whisper  WhisperConfig `mapstructure:"whisper"`
}

// WhisperConfig holds self-hosted whisper settings.
type WhisperConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Type      string `mapstructure:"type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	VADFilter bool   `mapstructure:"vad_filter"`
}

// Target defines a downstream service in the config file.
type Target struct {
	Endpoint string `mapstructure:"endpoint"`
	Protocol string `mapstructure:"protocol"`
	Token    string `mapstructure:"token"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Enabled         bool        `mapstructure:"enabled"`
	Backend         string      `mapstructure:"backend"` // "piper"
	DefaultLanguage string      `mapstructure:"default_language"`
	Piper           PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence and Endpoint
// is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
}

// RecorderConfig configures microphone capture for the chat REPL.
type RecorderConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	Channels   int `mapstructure:"channels"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./aryad.yaml, ./configs/aryad.yaml, /etc/aryad/aryad.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("aryad")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/aryad")
	}

	// Environment variables: ARYAD_SERVER_HEALTH_PORT, ARYAD_AGENT_BACKEND, etc.
	v.SetEnvPrefix("ARYAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; env vars and defaults are sufficient.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GEMINI_API_KEY}").
	cfg.LLM.Gemini.APIKey = resolveEnvRef(cfg.LLM.Gemini.APIKey)
	cfg.LLM.OpenAI.APIKey = resolveEnvRef(cfg.LLM.OpenAI.APIKey)
	for name, target := range cfg.Targets {
		target.Token = resolveEnvRef(target.Token)
		cfg.Targets[name] = target
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.mqtt.enabled", false)
	v.SetDefault("transports.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transports.mqtt.topic", "aryad/messages")
	v.SetDefault("transports.mqtt.client_id", "aryad")
	v.SetDefault("langid.enabled", true)
	v.SetDefault("langid.models_dir", "models")
	v.SetDefault("langid.extension", ".gmm")
	v.SetDefault("langid.duplicates", "reject")
	v.SetDefault("langid.sample_rate", 44100)
	v.SetDefault("langid.max_duration", 5.0)
	v.SetDefault("langid.n_mfcc", 13)
	v.SetDefault("agent.backend", "gemini")
	v.SetDefault("agent.identity_file", "agent_identity.txt")
	v.SetDefault("agent.mode", "chat")
	v.SetDefault("agent.temperature", 0.7)
	v.SetDefault("agent.history_size", 50)
	v.SetDefault("agent.max_sessions", 1024)
	v.SetDefault("agent.session_ttl", "1h")
	v.SetDefault("llm.gemini.api_key", "${GEMINI_API_KEY}")
	v.SetDefault("llm.gemini.model", "gemini-1.5-flash")
	v.SetDefault("llm.gemini.top_p", 0.8)
	v.SetDefault("llm.gemini.top_k", 40)
	v.SetDefault("llm.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.openai.transcription_model", "gpt-4o-transcribe")
	v.SetDefault("llm.openai.completion_model", "gpt-4o")
	v.SetDefault("llm.local.endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("llm.local.model", "llama3")
	v.SetDefault("stt.backend", "openai")
	v.SetDefault("stt.language", "")
	v.SetDefault("stt.whisper.endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("stt.whisper.type", "openai")
	v.SetDefault("stt.whisper.vad_filter", false)
	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.default_language", "fr")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("recorder.sample_rate", 44100)
	v.SetDefault("recorder.channels", 1)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", true)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	add := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	switch c.Agent.Backend {
	case "gemini", "openai", "local":
	default:
		add("agent.backend: unknown backend %q", c.Agent.Backend)
	}
	switch c.Agent.Mode {
	case "chat":
	case "interpreter":
		if c.Agent.TargetLanguage == "" {
			add("agent.target_language: required in interpreter mode")
		}
	default:
		add("agent.mode: unknown mode %q", c.Agent.Mode)
	}
	if c.Agent.HistorySize < 0 {
		add("agent.history_size: must not be negative")
	}
	if c.Agent.MaxSessions < 0 {
		add("agent.max_sessions: must not be negative")
	}
	if c.Agent.SessionTTL < 0 {
		add("agent.session_ttl: must not be negative")
	}

	switch c.STT.Backend {
	case "openai", "whisper":
	default:
		add("stt.backend: unknown backend %q", c.STT.Backend)
	}
	switch c.STT.Whisper.Type {
	case "", "openai", "asr":
	default:
		add("stt.whisper.type: unknown type %q", c.STT.Whisper.Type)
	}

	if c.TTS.Enabled && c.TTS.Backend != "piper" {
		add("tts.backend: unknown backend %q", c.TTS.Backend)
	}

	if c.LangID.Enabled {
		if c.LangID.SampleRate <= 0 {
			add("langid.sample_rate: must be positive")
		}
		if c.LangID.MaxDuration <= 0 {
			add("langid.max_duration: must be positive")
		}
		if c.LangID.NumMFCC <= 0 {
			add("langid.n_mfcc: must be positive")
		}
		switch c.LangID.Duplicates {
		case "", "reject", "override":
		default:
			add("langid.duplicates: unknown policy %q", c.LangID.Duplicates)
		}
	}

	if c.Recorder.SampleRate <= 0 || c.Recorder.Channels <= 0 {
		add("recorder: sample_rate and channels must be positive")
	}

	return errs.ErrorOrNil()
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
// An unset variable resolves to the empty string.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
