// Package agent implements the conversational assistant.
//
// An Agent runs in one of two modes:
//
//	chat         identity prompt + bounded conversation history + user turn
//	interpreter  literal translation into a target language, no history
//
// Switching modes never clears the chat history; Reset does.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nadzzz/aryad/internal/llm"
	"github.com/nadzzz/aryad/internal/observe"
)

// Mode selects how the agent answers.
type Mode string

const (
	ModeChat        Mode = "chat"
	ModeInterpreter Mode = "interpreter"
)

// DefaultIdentity is used when no identity file or text is configured.
const DefaultIdentity = "I am AryadAI, a conversational AI assistant."

const chatRules = `You must:
1. Answer naturally and engagingly
2. Keep the context of the conversation
3. Give precise and useful answers
4. Adapt your tone to the context of the conversation
5. Always introduce yourself as AryadAI when asked for your name or identity`

const interpreterPrompt = `You are a professional interpreter. You must:
1. Detect the source language automatically
2. Translate the message literally into the target language (%s)
3. Add nothing to and remove nothing from the original message
4. Give no additional explanation
5. Keep the tone and style of the message
6. Return ONLY the translation, with no other text or formatting`

var (
	// ErrEmptyInput is returned when Respond is called with blank text.
	ErrEmptyInput = errors.New("agent: empty input")

	// ErrNoTargetLanguage is returned when interpreter mode has no target.
	ErrNoTargetLanguage = errors.New("agent: interpreter mode needs a target language")
)

// Options configures an Agent.
type Options struct {
	Identity       string
	Mode           Mode
	TargetLanguage string
	Temperature    float64
	// HistorySize bounds the remembered chat turns (user+assistant pairs).
	// Zero keeps everything.
	HistorySize int
	Metrics     *observe.Metrics
}

// Agent holds one conversation. It is safe for concurrent use; concurrent
// Respond calls on the same agent are answered in arrival order.
type Agent struct {
	provider llm.Provider
	metrics  *observe.Metrics

	identity    string
	temperature float64
	historySize int

	turn sync.Mutex // serialises Respond calls

	mu      sync.Mutex
	mode    Mode
	target  string
	history []llm.Message
}

// New creates an agent answering through provider.
func New(provider llm.Provider, opts Options) *Agent {
	identity := strings.TrimSpace(opts.Identity)
	if identity == "" {
		identity = DefaultIdentity
	}
	mode := opts.Mode
	if mode != ModeInterpreter || opts.TargetLanguage == "" {
		mode = ModeChat
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.Default()
	}
	return &Agent{
		provider:    provider,
		metrics:     opts.Metrics,
		identity:    identity,
		temperature: opts.Temperature,
		historySize: opts.HistorySize,
		mode:        mode,
		target:      opts.TargetLanguage,
	}
}

// LoadIdentity reads the identity text from path, falling back to
// DefaultIdentity when the file is missing or empty.
func LoadIdentity(path string) string {
	if path == "" {
		return DefaultIdentity
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("agent identity unavailable, using default", "path", path, "error", err)
		return DefaultIdentity
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return DefaultIdentity
}

// Respond answers text according to the current mode.
func (a *Agent) Respond(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	a.turn.Lock()
	defer a.turn.Unlock()

	a.mu.Lock()
	mode, target := a.mode, a.target
	req := llm.Request{Temperature: a.temperature}
	if mode == ModeInterpreter {
		req.System = fmt.Sprintf(interpreterPrompt, target)
		req.Messages = []llm.Message{{Role: llm.RoleUser, Content: text}}
	} else {
		req.System = a.identity + "\n\n" + chatRules
		req.Messages = make([]llm.Message, 0, len(a.history)+1)
		req.Messages = append(req.Messages, a.history...)
		req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: text})
	}
	a.mu.Unlock()

	start := time.Now()
	resp, err := a.provider.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordStage(ctx, a.metrics.LLMDuration, a.provider.Name(), status, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", a.provider.Name(), err)
	}

	if mode == ModeChat {
		a.mu.Lock()
		a.history = append(a.history,
			llm.Message{Role: llm.RoleUser, Content: text},
			llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
		)
		if a.historySize > 0 && len(a.history) > 2*a.historySize {
			a.history = append([]llm.Message(nil), a.history[len(a.history)-2*a.historySize:]...)
		}
		a.mu.Unlock()
	}

	slog.Debug("agent responded", "mode", mode, "text_length", len(resp.Text))
	return resp.Text, nil
}

// SetInterpreter switches to interpreter mode for the given target language.
func (a *Agent) SetInterpreter(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrNoTargetLanguage
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = ModeInterpreter
	a.target = target
	return nil
}

// RestoreChat switches back to chat mode.
func (a *Agent) RestoreChat() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = ModeChat
}

// SetMode applies mode by name. target is required for interpreter mode.
func (a *Agent) SetMode(mode Mode, target string) error {
	switch mode {
	case ModeChat:
		a.RestoreChat()
		return nil
	case ModeInterpreter:
		return a.SetInterpreter(target)
	default:
		return fmt.Errorf("agent: unknown mode %q", mode)
	}
}

// Mode returns the current mode.
func (a *Agent) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// TargetLanguage returns the interpreter target, or "" in chat mode.
func (a *Agent) TargetLanguage() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != ModeInterpreter {
		return ""
	}
	return a.target
}

// History returns a copy of the chat history.
func (a *Agent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Message(nil), a.history...)
}

// Reset clears the chat history.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}
