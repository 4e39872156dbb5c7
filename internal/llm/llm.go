// Package llm defines the interface for hosted and self-hosted chat models.
//
// aryad ships three backends: Gemini (the default, via google.golang.org/genai),
// OpenAI (via openai-go) and Local (any Ollama or OpenAI-compatible endpoint).
package llm

import (
	"context"
	"errors"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call.
type Request struct {
	// System is the system prompt.
	System string

	// Messages is the conversation so far, ending with the user turn to answer.
	Messages []Message

	// Temperature controls sampling. Zero means the backend default.
	Temperature float64
}

// Response is the model's reply.
type Response struct {
	Text string
}

// ErrEmptyResponse is returned when the backend answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Provider produces completions.
type Provider interface {
	// Name returns the backend identifier (e.g., "gemini", "openai", "local").
	Name() string

	// Complete returns the model's reply to req.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Close releases any resources held by the provider.
	Close() error
}
