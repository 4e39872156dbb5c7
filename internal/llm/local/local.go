// Package local implements llm.Provider on self-hosted models.
//
// It speaks both Ollama's /api/generate and any OpenAI-compatible
// /v1/chat/completions endpoint (Ollama, vLLM, llama.cpp server). The flavour
// is chosen from the endpoint path.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/llm"
)

// Provider posts completions to a local model server.
type Provider struct {
	endpoint string
	model    string
	client   *http.Client
}

// New creates a local provider from config.
func New(cfg config.LocalConfig) *Provider {
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &Provider{
		endpoint: cfg.Endpoint,
		model:    model,
		client:   &http.Client{},
	}
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "local" }

// Complete sends the conversation to the local endpoint.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body, err := p.buildBody(req)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("local LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("local LLM failed (status %d): %s", resp.StatusCode, respBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading LLM response: %w", err)
	}

	text := strings.TrimSpace(extractContent(data))
	if text == "" {
		return nil, llm.ErrEmptyResponse
	}
	slog.Debug("local completion", "model", p.model, "text_length", len(text))
	return &llm.Response{Text: text}, nil
}

func (p *Provider) ollamaGenerate() bool {
	return strings.HasSuffix(p.endpoint, "/api/generate")
}

// buildBody encodes req for the configured endpoint flavour. Ollama's
// generate API has no message list, so the conversation is flattened into a
// transcript prompt.
func (p *Provider) buildBody(req llm.Request) ([]byte, error) {
	if p.ollamaGenerate() {
		var sb strings.Builder
		for i, m := range req.Messages {
			if len(req.Messages) == 1 {
				sb.WriteString(m.Content)
				break
			}
			if i > 0 {
				sb.WriteString("\n")
			}
			if m.Role == llm.RoleAssistant {
				sb.WriteString("Assistant: ")
			} else {
				sb.WriteString("User: ")
			}
			sb.WriteString(m.Content)
		}
		body := map[string]any{
			"model":  p.model,
			"system": req.System,
			"prompt": sb.String(),
			"stream": false,
		}
		if req.Temperature != 0 {
			body["options"] = map[string]any{"temperature": req.Temperature}
		}
		return json.Marshal(body)
	}

	messages := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	body := map[string]any{
		"model":    p.model,
		"messages": messages,
		"stream":   false,
	}
	if req.Temperature != 0 {
		body["temperature"] = req.Temperature
	}
	return json.Marshal(body)
}

// Close is a no-op for the local provider.
func (p *Provider) Close() error { return nil }

func extractContent(data []byte) string {
	// OpenAI-compatible format: {"choices": [{"message": {"content": "..."}}]}
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	// Ollama format: {"response": "..."}
	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}

	return string(data)
}
