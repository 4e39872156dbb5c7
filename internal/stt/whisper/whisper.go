// Package whisper implements stt.Transcriber on a self-hosted Whisper server.
//
// Two flavours are supported:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/lang"
	"github.com/nadzzz/aryad/internal/stt"
)

// Transcriber posts audio to a Whisper-compatible endpoint.
type Transcriber struct {
	endpoint        string
	flavour         string // "openai" or "asr"
	vadFilter       bool
	defaultLanguage string
	client          *http.Client
}

// New creates a whisper transcriber from config.
func New(cfg config.WhisperConfig, defaultLanguage string) *Transcriber {
	flavour := cfg.Type
	if flavour == "" {
		flavour = "openai"
	}
	return &Transcriber{
		endpoint:        cfg.Endpoint,
		flavour:         flavour,
		vadFilter:       cfg.VADFilter,
		defaultLanguage: defaultLanguage,
		client:          &http.Client{},
	}
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "whisper" }

// Transcribe sends audio to the configured endpoint.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, contentType string, opts stt.Opts) (*stt.Result, error) {
	if opts.Language == "" {
		opts.Language = t.defaultLanguage
	}

	var (
		req *http.Request
		err error
	)
	if t.flavour == "asr" {
		req, err = t.asrRequest(ctx, audio, contentType, opts)
	} else {
		req, err = t.openAIRequest(ctx, audio, contentType, opts)
	}
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("whisper transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	// Both flavours return {"text": "...", "language": "..."} for verbose_json.
	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding transcription: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil, stt.ErrNoSpeech
	}
	language := lang.Normalize(result.Language)
	slog.Debug("whisper transcription complete", "flavour", t.flavour, "text_length", len(text), "language", language)
	return &stt.Result{Text: text, Language: language}, nil
}

// asrRequest builds a whisper-asr-webservice request.
// API: POST /asr?task=transcribe&language=en&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file"
func (t *Transcriber) asrRequest(ctx context.Context, audio []byte, contentType string, opts stt.Opts) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio_file", "audio"+stt.ExtFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.Prompt != "" {
		q.Set("initial_prompt", opts.Prompt)
	}
	if t.vadFilter {
		q.Set("vad_filter", "true")
	}

	reqURL := t.endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	slog.Debug("whisper-asr request", "url", reqURL)
	return req, nil
}

// openAIRequest builds an OpenAI-compatible transcription request.
func (t *Transcriber) openAIRequest(ctx context.Context, audio []byte, contentType string, opts stt.Opts) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "audio"+stt.ExtFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	if opts.Model != "" {
		_ = writer.WriteField("model", opts.Model)
	}
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		_ = writer.WriteField("prompt", opts.Prompt)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// Close is a no-op for the whisper transcriber.
func (t *Transcriber) Close() error { return nil }
