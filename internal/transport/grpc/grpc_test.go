package grpc

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/transport"
)

type fakeService struct {
	mu       sync.Mutex
	messages []*message.Message
	via      []string
}

func (f *fakeService) Handle(ctx context.Context, msg *message.Message) (*message.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	f.via = append(f.via, transport.NameFrom(ctx))
	return &message.Result{MessageID: msg.ID, Source: msg.Source, ResponseText: "ok:" + msg.Text}, nil
}

func (f *fakeService) Detect(_ context.Context, audio []byte, _ string) (*message.Detection, error) {
	return &message.Detection{Label: "english", Language: "en", Scores: []message.LanguageScore{{Label: "english", Score: float64(-len(audio))}}}, nil
}

func (f *fakeService) SetMode(context.Context, string, string, string) error { return nil }
func (f *fakeService) Reset(context.Context, string) error                  { return nil }

func (f *fakeService) snapshot() ([]*message.Message, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*message.Message(nil), f.messages...), append([]string(nil), f.via...)
}

func startServer(t *testing.T, svc transport.Service) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tr := New(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Serve(ctx, lis, svc)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return lis.Addr().String()
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandleAndDetect(t *testing.T) {
	svc := &fakeService{}
	conn := dial(t, startServer(t, svc))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var res message.Result
	err := conn.Invoke(ctx, handleMethod, &message.Message{Source: "robot", Text: "hi"}, &res, grpc.CallContentSubtype("json"))
	require.NoError(t, err)
	assert.Equal(t, "ok:hi", res.ResponseText)
	assert.Equal(t, "robot", res.Source)
	assert.NotEmpty(t, res.MessageID)

	_, via := svc.snapshot()
	assert.Equal(t, []string{"grpc"}, via)

	var det message.Detection
	err = conn.Invoke(ctx, detectMethod, &DetectRequest{Audio: []byte("abc"), ContentType: "audio/wav"}, &det, grpc.CallContentSubtype("json"))
	require.NoError(t, err)
	assert.Equal(t, "english", det.Label)
	assert.Equal(t, -3.0, det.Scores[0].Score)

	err = conn.Invoke(ctx, detectMethod, &DetectRequest{}, &det, grpc.CallContentSubtype("json"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSendRelaysReply(t *testing.T) {
	svc := &fakeService{}
	addr := startServer(t, svc)

	payload, err := json.Marshal(message.Result{MessageID: "m1", Source: "alice", ResponseText: "hola"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, New(0).Send(ctx, message.Target{ServiceName: "relay", Endpoint: addr}, payload))

	msgs, _ := svc.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hola", msgs[0].Text)
	assert.Equal(t, "alice", msgs[0].Source)
}

func TestSendRejectsEmptyResult(t *testing.T) {
	payload, _ := json.Marshal(message.Result{MessageID: "m1"})
	err := New(0).Send(context.Background(), message.Target{Endpoint: "127.0.0.1:1"}, payload)
	require.ErrorContains(t, err, "no text to relay")
}
