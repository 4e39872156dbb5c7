// Package grpc implements the gRPC transport for aryad.
//
// The service is aryad.Assistant with two unary methods, Handle and Detect.
// Messages are the JSON forms of the message package types, carried by a
// codec registered under the "json" content subtype, so clients in any
// language can call it without generated stubs.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/transport"
)

const (
	serviceName  = "aryad.Assistant"
	handleMethod = "/" + serviceName + "/Handle"
	detectMethod = "/" + serviceName + "/Detect"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals gRPC messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// DetectRequest is the input of aryad.Assistant/Detect.
type DetectRequest struct {
	Audio       []byte `json:"audio"`
	ContentType string `json:"content_type,omitempty"`
}

// AssistantServer is the server API for the aryad.Assistant service.
type AssistantServer interface {
	Handle(ctx context.Context, msg *message.Message) (*message.Result, error)
	Detect(ctx context.Context, req *DetectRequest) (*message.Detection, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AssistantServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handle", Handler: handleHandler},
		{MethodName: "Detect", Handler: detectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aryad.proto",
}

func handleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(message.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).Handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: handleMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AssistantServer).Handle(ctx, req.(*message.Message))
	}
	return interceptor(ctx, in, info, handler)
}

func detectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DetectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AssistantServer).Detect(ctx, req.(*DetectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// server adapts a transport.Service to AssistantServer.
type server struct {
	svc transport.Service
}

func (s *server) Handle(ctx context.Context, msg *message.Message) (*message.Result, error) {
	source := "grpc"
	if p, ok := sourceFromMetadata(ctx); ok {
		source = p
	}
	msg.Normalize(source)
	res, err := s.svc.Handle(ctx, msg)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

func (s *server) Detect(ctx context.Context, req *DetectRequest) (*message.Detection, error) {
	if len(req.Audio) == 0 {
		return nil, status.Error(codes.InvalidArgument, "audio is empty")
	}
	det, err := s.svc.Detect(ctx, req.Audio, req.ContentType)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return det, nil
}

func sourceFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	if v := md.Get("x-aryad-source"); len(v) > 0 && v[0] != "" {
		return v[0], true
	}
	return "", false
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to svc.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)
	return t.Serve(ctx, lis, svc)
}

// Serve runs the gRPC server on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, svc transport.Service) error {
	t.server = grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(transport.WithName(ctx, t.Name()), req)
	}))
	t.server.RegisterService(&serviceDesc, &server{svc: svc})

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.server.GracefulStop()
	}()

	return t.server.Serve(lis)
}

// Send relays a result to another aryad instance: the reply text becomes a
// new message from the same source on the target's Handle method.
func (t *Transport) Send(ctx context.Context, target message.Target, payload []byte) error {
	var res message.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return fmt.Errorf("grpc send: decoding result: %w", err)
	}
	text := res.ResponseText
	if text == "" {
		text = res.Transcript
	}
	if text == "" {
		return fmt.Errorf("grpc send: result %s has no text to relay", res.MessageID)
	}

	conn, err := grpc.NewClient(target.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("grpc send: %w", err)
	}
	defer conn.Close()

	md := metadata.Pairs("x-aryad-source", res.Source)
	if target.Token != "" {
		md.Append("authorization", "Bearer "+target.Token)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	msg := message.New(res.Source, text)
	var reply message.Result
	if err := conn.Invoke(ctx, handleMethod, msg, &reply, grpc.CallContentSubtype("json")); err != nil {
		return fmt.Errorf("grpc send: %w", err)
	}
	slog.Debug("grpc send success", "target", target.Endpoint, "reply_id", reply.MessageID)
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
