// Package gemini implements llm.Provider on Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/llm"
)

// Provider calls Models.GenerateContent for every completion.
type Provider struct {
	client *genai.Client
	model  string
	topP   float32
	topK   float32
}

// Option customises a Provider.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at another endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// New creates a Gemini provider from config.
func New(ctx context.Context, cfg config.GeminiConfig, opts ...Option) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is not set (llm.gemini.api_key or GEMINI_API_KEY)")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Provider{
		client: client,
		model:  model,
		topP:   float32(cfg.TopP),
		topK:   float32(cfg.TopK),
	}, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "gemini" }

// Complete sends the conversation to Gemini.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	gcfg, contents := p.buildRequest(req)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, gcfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, llm.ErrEmptyResponse
	}
	slog.Debug("gemini completion", "model", p.model, "text_length", len(text))
	return &llm.Response{Text: text}, nil
}

// buildRequest converts a request into Gemini contents. Consecutive turns by
// the same role are merged since the API expects alternating roles.
func (p *Provider) buildRequest(req llm.Request) (*genai.GenerateContentConfig, []*genai.Content) {
	gcfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		gcfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.System)}}
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		gcfg.Temperature = &t
	}
	if p.topP != 0 {
		gcfg.TopP = &p.topP
	}
	if p.topK != 0 {
		gcfg.TopK = &p.topK
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, m := range req.Messages {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		part := genai.NewPartFromText(m.Content)
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}
	return gcfg, contents
}

// Close is a no-op; the genai client holds no resources that need releasing.
func (p *Provider) Close() error { return nil }
