// Package openai implements llm.Provider on OpenAI's Chat Completions API.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/llm"
)

// Provider calls Chat.Completions.New for every completion.
type Provider struct {
	client oai.Client
	model  string
}

// New creates an OpenAI provider from config.
func New(cfg config.OpenAIConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is not set (llm.openai.api_key or OPENAI_API_KEY)")
	}
	model := cfg.CompletionModel
	if model == "" {
		model = "gpt-4o"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: oai.NewClient(opts...), model: model}, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "openai" }

// Complete sends the conversation to the chat completions endpoint.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := p.client.Chat.Completions.New(ctx, buildParams(p.model, req))
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices returned: %w", llm.ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, llm.ErrEmptyResponse
	}
	slog.Debug("openai completion", "model", p.model, "text_length", len(text))
	return &llm.Response{Text: text}, nil
}

func buildParams(model string, req llm.Request) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, oai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleAssistant {
			messages = append(messages, oai.AssistantMessage(m.Content))
			continue
		}
		messages = append(messages, oai.UserMessage(m.Content))
	}
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	return params
}

// Close is a no-op for the OpenAI provider.
func (p *Provider) Close() error { return nil }
