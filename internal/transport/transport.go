// Package transport defines the interface for pluggable message transports.
//
// Each transport (gRPC, HTTP/WebSocket, MQTT) implements this interface and
// is handed the assistant as a Service. The assistant doesn't care how
// messages arrive; it only works with the Transport contract.
package transport

import (
	"context"
	"errors"

	"github.com/nadzzz/aryad/internal/message"
)

// ErrUnsupported is returned by services that do not implement an operation.
var ErrUnsupported = errors.New("transport: operation not supported")

// Handler is a function that processes an incoming message and returns a result.
type Handler func(ctx context.Context, msg *message.Message) (*message.Result, error)

// Service is everything a transport can ask of the assistant.
type Service interface {
	// Handle runs a message through the full pipeline.
	Handle(ctx context.Context, msg *message.Message) (*message.Result, error)

	// Detect identifies the language spoken in an audio payload.
	Detect(ctx context.Context, audio []byte, contentType string) (*message.Detection, error)

	// SetMode switches a session between "chat" and "interpreter".
	SetMode(ctx context.Context, source, mode, targetLanguage string) error

	// Reset clears a session's conversation history.
	Reset(ctx context.Context, source string) error
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http", "mqtt").
	Name() string

	// Listen starts accepting incoming messages and passes them to svc.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, svc Service) error

	// Send delivers a payload to a target address using this transport's protocol.
	Send(ctx context.Context, target message.Target, payload []byte) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}

type nameKey struct{}

// WithName records the transport a request arrived on.
func WithName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nameKey{}, name)
}

// NameFrom returns the transport recorded by WithName, or "direct".
func NameFrom(ctx context.Context) string {
	if name, ok := ctx.Value(nameKey{}).(string); ok {
		return name
	}
	return "direct"
}

// HandlerFunc adapts a Handler into a Service that only answers messages.
// The other operations return ErrUnsupported.
type HandlerFunc Handler

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg *message.Message) (*message.Result, error) {
	return f(ctx, msg)
}

// Detect is not supported by a bare handler.
func (f HandlerFunc) Detect(context.Context, []byte, string) (*message.Detection, error) {
	return nil, ErrUnsupported
}

// SetMode is not supported by a bare handler.
func (f HandlerFunc) SetMode(context.Context, string, string, string) error { return ErrUnsupported }

// Reset is not supported by a bare handler.
func (f HandlerFunc) Reset(context.Context, string) error { return ErrUnsupported }
