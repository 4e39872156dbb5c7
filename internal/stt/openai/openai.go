// Package openai implements stt.Transcriber using OpenAI's Audio
// Transcription API (Whisper / gpt-4o-transcribe).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/lang"
	"github.com/nadzzz/aryad/internal/stt"
)

// Transcriber uses the OpenAI transcription endpoint.
type Transcriber struct {
	client oai.Client
	model  string
}

// New creates an OpenAI transcriber from config.
func New(cfg config.OpenAIConfig) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is not set (llm.openai.api_key or OPENAI_API_KEY)")
	}
	model := cfg.TranscriptionModel
	if model == "" {
		model = "gpt-4o-transcribe"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Transcriber{client: oai.NewClient(opts...), model: model}, nil
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "openai" }

// Transcribe sends audio to the OpenAI Transcription API.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, contentType string, opts stt.Opts) (*stt.Result, error) {
	model := t.model
	if opts.Model != "" {
		model = opts.Model
	}
	if contentType == "" {
		contentType = "audio/wav"
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(audio), "audio"+stt.ExtFromContentType(contentType), contentType),
		Model: oai.AudioModel(model),
	}
	if opts.Language != "" {
		params.Language = oai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = oai.String(opts.Prompt)
	}
	// Only whisper-1 reports the language, and only in verbose_json.
	if oai.AudioModel(model) == oai.AudioModelWhisper1 {
		params.ResponseFormat = oai.AudioResponseFormatVerboseJSON
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, stt.ErrNoSpeech
	}

	var extra struct {
		Language string `json:"language"`
	}
	_ = json.Unmarshal([]byte(resp.RawJSON()), &extra)
	language := lang.Normalize(extra.Language)

	slog.Debug("transcription complete", "text_length", len(text), "language", language)
	return &stt.Result{Text: text, Language: language}, nil
}

// Close is a no-op for the OpenAI transcriber.
func (t *Transcriber) Close() error { return nil }
