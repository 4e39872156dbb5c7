// Package http implements the HTTP/WebSocket transport for aryad.
//
// This transport exposes a REST API for messages, language identification
// and session control, plus a WebSocket endpoint for a JSON message stream.
// It is best suited for web clients, phones, and services that prefer
// HTTP-based communication.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/aryad/docs" // registers the OpenAPI document
	"github.com/nadzzz/aryad/internal/langid"
	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/transport"
)

const (
	maxAudioBytes = 25 << 20 // 25 MB
	sendTimeout   = 30 * time.Second

	headerSource      = "X-Aryad-Source"
	headerInstruction = "X-Aryad-Instruction"
)

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port   int
	server *http.Server
	client *http.Client
}

// New creates a new HTTP transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port, client: &http.Client{Timeout: sendTimeout}}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the HTTP routes serving svc.
func (t *Transport) Handler(svc transport.Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		t.handleMessage(w, r, svc)
	})
	mux.HandleFunc("POST /v1/detect", func(w http.ResponseWriter, r *http.Request) {
		t.handleDetect(w, r, svc)
	})
	mux.HandleFunc("POST /v1/sessions/{source}/mode", func(w http.ResponseWriter, r *http.Request) {
		t.handleSetMode(w, r, svc)
	})
	mux.HandleFunc("DELETE /v1/sessions/{source}/history", func(w http.ResponseWriter, r *http.Request) {
		t.handleReset(w, r, svc)
	})
	mux.HandleFunc("GET /v1/ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleWebSocket(w, r, svc)
	})

	// Swagger UI for the registered OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// Listen starts the HTTP server and routes incoming requests to svc.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return transport.WithName(ctx, t.Name()) },
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleMessage processes a POST /v1/messages request.
//
// @Summary     Send a message to the assistant
// @Description Accepts a JSON message (typed text or base64 audio) or raw audio bytes.
// @Description Audio is identified, transcribed and answered by the session's agent.
// @Description The reply is voiced when TTS is enabled and forwarded to any targets.
// @Tags        messages
// @Accept      json
// @Accept      audio/wav
// @Accept      audio/mpeg
// @Produce     json
// @Param       message  body      message.Message  true  "Message (JSON). For raw audio, POST the bytes directly with the appropriate Content-Type."
// @Param       X-Aryad-Source       header  string  false  "Sender identifier (used with raw audio uploads)"
// @Param       X-Aryad-Instruction  header  string  false  "JSON-encoded Instruction (used with raw audio uploads)"
// @Success     200  {object}  message.Result  "Assistant reply"
// @Failure     400  {string}  string  "Invalid request body or headers"
// @Failure     413  {string}  string  "Body larger than 25 MB of audio"
// @Failure     500  {string}  string  "Internal processing error"
// @Router      /v1/messages [post]
func (t *Transport) handleMessage(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var msg message.Message

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		body := http.MaxBytesReader(w, r.Body, maxAudioBytes*2)
		if err := json.NewDecoder(body).Decode(&msg); err != nil {
			http.Error(w, "invalid json: "+err.Error(), bodyStatus(err))
			return
		}
	default:
		// Treat body as raw audio; read instruction from headers.
		audioData, err := readAudio(w, r)
		if err != nil {
			http.Error(w, err.Error(), bodyStatus(err))
			return
		}
		msg.Audio = audioData
		msg.ContentType = r.Header.Get("Content-Type")
		msg.Source = r.Header.Get(headerSource)

		if instrHeader := r.Header.Get(headerInstruction); instrHeader != "" {
			if err := json.Unmarshal([]byte(instrHeader), &msg.Instruction); err != nil {
				http.Error(w, "invalid instruction header: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
	}
	msg.Normalize(remoteSource(r))

	result, err := svc.Handle(r.Context(), &msg)
	if err != nil {
		slog.Error("message handling failed", "error", err)
		http.Error(w, "processing error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDetect processes a POST /v1/detect request.
//
// @Summary     Identify the spoken language
// @Description Scores raw WAV or MP3 audio against every loaded language model.
// @Tags        langid
// @Accept      audio/wav
// @Accept      audio/mpeg
// @Produce     json
// @Success     200  {object}  message.Detection  "Best label and per-language scores"
// @Failure     400  {string}  string  "Empty body"
// @Failure     413  {string}  string  "Body larger than 25 MB"
// @Failure     422  {string}  string  "Audio could not be decoded"
// @Failure     501  {string}  string  "Language identification disabled"
// @Failure     503  {string}  string  "No language models loaded"
// @Router      /v1/detect [post]
func (t *Transport) handleDetect(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	audioData, err := readAudio(w, r)
	if err != nil {
		http.Error(w, err.Error(), bodyStatus(err))
		return
	}
	det, err := svc.Detect(r.Context(), audioData, r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), detectStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, det)
}

func detectStatus(err error) int {
	switch {
	case errors.Is(err, langid.ErrDecode), errors.Is(err, langid.ErrEmptyAudio):
		return http.StatusUnprocessableEntity
	case errors.Is(err, langid.ErrNoModels):
		return http.StatusServiceUnavailable
	case errors.Is(err, transport.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ModeRequest is the body of POST /v1/sessions/{source}/mode.
type ModeRequest struct {
	Mode           string `json:"mode"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// handleSetMode processes a POST /v1/sessions/{source}/mode request.
//
// @Summary     Switch a session between chat and interpreter mode
// @Tags        sessions
// @Accept      json
// @Param       source  path  string       true  "Session source"
// @Param       mode    body  ModeRequest  true  "Mode and interpreter target language"
// @Success     204
// @Failure     400  {string}  string  "Unknown mode or missing target language"
// @Router      /v1/sessions/{source}/mode [post]
func (t *Transport) handleSetMode(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	var req ModeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := svc.SetMode(r.Context(), r.PathValue("source"), req.Mode, req.TargetLanguage); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReset processes a DELETE /v1/sessions/{source}/history request.
//
// @Summary     Clear a session's conversation history
// @Tags        sessions
// @Param       source  path  string  true  "Session source"
// @Success     204
// @Router      /v1/sessions/{source}/history [delete]
func (t *Transport) handleReset(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	if err := svc.Reset(r.Context(), r.PathValue("source")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket streams JSON messages in and results out on one connection.
// The session source defaults to the "source" query parameter.
//
// @Summary     Message stream
// @Description Upgrade to a WebSocket. Each text frame carries a JSON message; each reply is a JSON result.
// @Tags        messages
// @Param       source  query  string  false  "Default session source"
// @Router      /v1/ws [get]
func (t *Transport) handleWebSocket(w http.ResponseWriter, r *http.Request, svc transport.Service) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxAudioBytes * 2)

	source := r.URL.Query().Get("source")
	if source == "" {
		source = remoteSource(r)
	}
	ctx := r.Context()
	slog.Info("websocket connected", "source", source)

	for {
		var msg message.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				slog.Info("websocket closed", "source", source)
			} else {
				slog.Warn("websocket read failed", "source", source, "error", err)
			}
			return
		}
		msg.Normalize(source)

		result, err := svc.Handle(ctx, &msg)
		if err != nil {
			result = &message.Result{MessageID: msg.ID, Source: msg.Source, Error: err.Error()}
		}
		if err := wsjson.Write(ctx, conn, result); err != nil {
			slog.Warn("websocket write failed", "source", source, "error", err)
			return
		}
	}
}

// Send delivers a payload to an HTTP target via POST.
func (t *Transport) Send(ctx context.Context, target message.Target, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("http send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if target.Token != "" {
		req.Header.Set("Authorization", "Bearer "+target.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("http send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http send: status %d: %s", resp.StatusCode, body)
	}

	slog.Debug("http send success", "target", target.Endpoint, "status", resp.StatusCode)
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty request body")
	}
	return data, nil
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// remoteSource names the session of a client that did not name one. The
// port is dropped so every connection from a host shares its history.
func remoteSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
