package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nadzzz/aryad/internal/agent"
	"github.com/nadzzz/aryad/internal/audio"
	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/langid"
	"github.com/nadzzz/aryad/internal/llm"
	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/observe"
	"github.com/nadzzz/aryad/internal/stt"
	"github.com/nadzzz/aryad/internal/transport"
	"github.com/nadzzz/aryad/internal/tts"
)

type fakeLLM struct {
	mu   sync.Mutex
	reqs []llm.Request
	err  error
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: "reply to " + req.Messages[len(req.Messages)-1].Content}, nil
}

type fakeSTT struct {
	text     string
	language string
	err      error
	closeErr error
	opts     []stt.Opts
}

func (f *fakeSTT) Name() string { return "fake-stt" }
func (f *fakeSTT) Close() error { return f.closeErr }

func (f *fakeSTT) Transcribe(_ context.Context, _ []byte, _ string, opts stt.Opts) (*stt.Result, error) {
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &stt.Result{Text: f.text, Language: f.language}, nil
}

type fakeTTS struct {
	err      error
	closeErr error
	langs    []string
}

func (f *fakeTTS) Name() string { return "fake-tts" }
func (f *fakeTTS) Close() error { return f.closeErr }

func (f *fakeTTS) Synthesize(_ context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	f.langs = append(f.langs, opts.Language)
	if f.err != nil {
		return nil, f.err
	}
	return &tts.SynthesizeResult{Audio: []byte("WAV:" + text), ContentType: "audio/wav", Language: opts.Language}, nil
}

type fakeTransport struct {
	name    string
	err     error
	targets []message.Target
	payload []byte
}

func (f *fakeTransport) Name() string                                      { return f.name }
func (f *fakeTransport) Listen(context.Context, transport.Service) error   { return nil }
func (f *fakeTransport) Close() error                                      { return nil }
func (f *fakeTransport) Send(_ context.Context, t message.Target, p []byte) error {
	if f.err != nil {
		return f.err
	}
	f.targets = append(f.targets, t)
	f.payload = p
	return nil
}

type constScorer float64

func (c constScorer) Score([][]float64) (float64, error) { return float64(c), nil }

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	require.NoError(t, err)
	return m
}

func newAssistant(t *testing.T, opts Options) (*Assistant, *fakeLLM) {
	t.Helper()
	provider := &fakeLLM{}
	opts.Metrics = testMetrics(t)
	opts.NewAgent = func() *agent.Agent {
		return agent.New(provider, agent.Options{Metrics: opts.Metrics})
	}
	return New(opts), provider
}

func frenchDetector(t *testing.T) *langid.Detector {
	t.Helper()
	cfg := langid.DefaultExtractorConfig()
	cfg.SampleRate = 16000
	ext, err := langid.NewExtractor(cfg)
	require.NoError(t, err)
	store := langid.NewStore(map[string]langid.Scorer{
		"english": constScorer(-12),
		"french":  constScorer(-3),
	})
	return langid.NewDetector(store, ext, langid.WithMetrics(testMetrics(t)))
}

func toneWAV(t *testing.T) []byte {
	t.Helper()
	pcm := make([]int, 16000)
	for i := range pcm {
		pcm[i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	data, err := audio.EncodeWAV(pcm, 16000, 1, 16)
	require.NoError(t, err)
	return data
}

func TestHandleTextDefaultsToTextAndAudio(t *testing.T) {
	synth := &fakeTTS{}
	a, _ := newAssistant(t, Options{Synthesizer: synth, DefaultLanguage: "french"})

	res, err := a.Handle(context.Background(), message.New("alice", "hello"))
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, "chat", res.Mode)
	assert.Equal(t, "reply to hello", res.ResponseText)
	assert.Equal(t, "fr", res.ResponseLanguage)
	assert.Equal(t, "audio/wav", res.ResponseContentType)

	audioBytes, err := res.ResponseAudioBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("WAV:reply to hello"), audioBytes)
	assert.Equal(t, 1, a.Sessions())
}

func TestHandleTextOnlyWithoutSynthesizer(t *testing.T) {
	a, _ := newAssistant(t, Options{})
	res, err := a.Handle(context.Background(), message.New("bob", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "reply to hi", res.ResponseText)
	assert.Empty(t, res.ResponseAudio)
}

func TestHandleResponseModes(t *testing.T) {
	cases := []struct {
		mode      message.ResponseMode
		wantText  bool
		wantAudio bool
	}{
		{message.ResponseModeNone, false, false},
		{message.ResponseModeText, true, false},
		{message.ResponseModeAudio, false, true},
		{message.ResponseModeTextAudio, true, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			a, _ := newAssistant(t, Options{Synthesizer: &fakeTTS{}})
			msg := message.New("carol", "hey")
			msg.Instruction.ResponseMode = tc.mode
			res, err := a.Handle(context.Background(), msg)
			require.NoError(t, err)
			assert.Equal(t, tc.wantText, res.ResponseText != "")
			assert.Equal(t, tc.wantAudio, res.ResponseAudio != "")
		})
	}
}

func TestHandleAudioDetectsAndTranscribes(t *testing.T) {
	transcriber := &fakeSTT{text: "bonjour", language: "fr"}
	synth := &fakeTTS{}
	a, _ := newAssistant(t, Options{
		Detector:    frenchDetector(t),
		Transcriber: transcriber,
		Synthesizer: synth,
	})

	msg := &message.Message{Source: "kiosk", Audio: toneWAV(t), ContentType: "audio/wav"}
	msg.Normalize("test")
	res, err := a.Handle(context.Background(), msg)
	require.NoError(t, err)
	require.Empty(t, res.Error)

	require.NotNil(t, res.Detection)
	assert.Equal(t, "french", res.Detection.Label)
	assert.Equal(t, "fr", res.Language)
	require.Len(t, res.Detection.Scores, 2)
	assert.Equal(t, "english", res.Detection.Scores[1].Label)

	require.Len(t, transcriber.opts, 1)
	assert.Equal(t, "fr", transcriber.opts[0].Language)
	assert.Equal(t, "bonjour", res.Transcript)
	assert.Equal(t, "reply to bonjour", res.ResponseText)
	assert.Equal(t, []string{"fr"}, synth.langs)
}

func TestHandleAudioForcedSTTLanguage(t *testing.T) {
	transcriber := &fakeSTT{text: "hola", language: "es"}
	a, _ := newAssistant(t, Options{
		Detector:    frenchDetector(t),
		Transcriber: transcriber,
		STTLanguage: "english",
	})
	msg := &message.Message{Source: "kiosk", Audio: toneWAV(t), ContentType: "audio/wav"}
	_, err := a.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "en", transcriber.opts[0].Language)
}

func TestHandleAudioFailures(t *testing.T) {
	msg := func() *message.Message {
		return &message.Message{Source: "s", Audio: []byte("not audio"), ContentType: "audio/wav"}
	}

	a, _ := newAssistant(t, Options{Transcriber: &fakeSTT{err: stt.ErrNoSpeech}})
	res, err := a.Handle(context.Background(), msg())
	require.NoError(t, err)
	assert.Equal(t, NoSpeechReply, res.Error)

	a, _ = newAssistant(t, Options{})
	res, err = a.Handle(context.Background(), msg())
	require.NoError(t, err)
	assert.Contains(t, res.Error, "speech recognition is disabled")

	// Undecodable audio only loses the detection.
	a, _ = newAssistant(t, Options{Detector: frenchDetector(t), Transcriber: &fakeSTT{text: "ok", language: "en"}})
	res, err = a.Handle(context.Background(), msg())
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Nil(t, res.Detection)
	assert.Equal(t, "en", res.Language)

	a, _ = newAssistant(t, Options{Transcriber: &fakeSTT{err: errors.New("boom")}})
	res, err = a.Handle(context.Background(), msg())
	require.NoError(t, err)
	assert.Contains(t, res.Error, "transcription failed")
}

func TestHandleEmptyAndLLMFailure(t *testing.T) {
	a, provider := newAssistant(t, Options{})
	res, err := a.Handle(context.Background(), message.New("s", "   "))
	require.NoError(t, err)
	assert.Equal(t, "message has no audio and no text", res.Error)

	provider.err = errors.New("quota")
	res, err = a.Handle(context.Background(), message.New("s", "hi"))
	require.NoError(t, err)
	assert.Contains(t, res.Error, "quota")
}

func TestHandleInterpreterInstruction(t *testing.T) {
	synth := &fakeTTS{}
	a, provider := newAssistant(t, Options{Synthesizer: synth})

	msg := message.New("dan", "good morning")
	msg.Instruction.Mode = "interpreter"
	msg.Instruction.TargetLanguage = "Spanish"
	res, err := a.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "interpreter", res.Mode)
	assert.Equal(t, "es", res.ResponseLanguage)
	assert.Contains(t, provider.reqs[0].System, "Spanish")

	// The mode sticks to the session.
	res, err = a.Handle(context.Background(), message.New("dan", "thanks"))
	require.NoError(t, err)
	assert.Equal(t, "interpreter", res.Mode)

	bad := message.New("dan", "x")
	bad.Instruction.Mode = "poet"
	res, err = a.Handle(context.Background(), bad)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "mode switch failed")
}

func TestHandleTTSFailureKeepsText(t *testing.T) {
	a, _ := newAssistant(t, Options{Synthesizer: &fakeTTS{err: errors.New("piper down")}})
	res, err := a.Handle(context.Background(), message.New("s", "hi"))
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, "reply to hi", res.ResponseText)
	assert.Empty(t, res.ResponseAudio)
}

func TestHandleRoutesToTargets(t *testing.T) {
	httpT := &fakeTransport{name: "http"}
	mqttT := &fakeTransport{name: "mqtt", err: errors.New("broker gone")}
	a, _ := newAssistant(t, Options{
		Transports: []transport.Transport{httpT, mqttT},
		Targets: map[string]config.Target{
			"kitchen": {Endpoint: "http://kitchen.local/hook", Protocol: "http", Token: "secret"},
		},
	})

	msg := message.New("eve", "lights on")
	msg.Instruction.ResponseMode = message.ResponseModeText
	msg.Instruction.Targets = []message.Target{
		{ServiceName: "kitchen"},
		{ServiceName: "lamp", Protocol: "mqtt", Endpoint: "home/lamp"},
		{ServiceName: "fax", Protocol: "fax"},
	}
	res, err := a.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"kitchen"}, res.RoutedTo)

	require.Len(t, httpT.targets, 1)
	assert.Equal(t, "http://kitchen.local/hook", httpT.targets[0].Endpoint)
	assert.Equal(t, "secret", httpT.targets[0].Token)

	var sent message.Result
	require.NoError(t, json.Unmarshal(httpT.payload, &sent))
	assert.Equal(t, "reply to lights on", sent.ResponseText)
}

func TestDetect(t *testing.T) {
	a, _ := newAssistant(t, Options{})
	_, err := a.Detect(context.Background(), toneWAV(t), "audio/wav")
	require.ErrorIs(t, err, ErrDetectionDisabled)
	require.ErrorIs(t, err, transport.ErrUnsupported)

	a, _ = newAssistant(t, Options{Detector: frenchDetector(t)})
	det, err := a.Detect(context.Background(), toneWAV(t), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "french", det.Label)
	assert.Equal(t, "fr", det.Language)
	assert.Equal(t, -3.0, det.Scores[0].Score)

	_, err = a.Detect(context.Background(), []byte("garbage"), "audio/wav")
	require.Error(t, err)

	empty := langid.NewDetector(nil, nil, langid.WithMetrics(testMetrics(t)))
	a, _ = newAssistant(t, Options{Detector: empty})
	_, err = a.Detect(context.Background(), toneWAV(t), "audio/wav")
	require.ErrorIs(t, err, langid.ErrNoModels)
}

func TestSetModeAndReset(t *testing.T) {
	a, provider := newAssistant(t, Options{})
	ctx := context.Background()

	_, err := a.Handle(ctx, message.New("frank", "one"))
	require.NoError(t, err)

	require.NoError(t, a.SetMode(ctx, "frank", "interpreter", "de"))
	require.ErrorIs(t, a.SetMode(ctx, "frank", "interpreter", ""), agent.ErrNoTargetLanguage)
	require.NoError(t, a.SetMode(ctx, "frank", "chat", ""))

	require.NoError(t, a.Reset(ctx, "frank"))
	require.NoError(t, a.Reset(ctx, "nobody"))

	_, err = a.Handle(ctx, message.New("frank", "two"))
	require.NoError(t, err)
	last := provider.reqs[len(provider.reqs)-1]
	require.Len(t, last.Messages, 1)
	assert.Equal(t, "two", last.Messages[0].Content)
}

func lastTurns(p *fakeLLM) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reqs[len(p.reqs)-1].Messages)
}

func TestSessionsDropLeastRecentlyUsed(t *testing.T) {
	a, provider := newAssistant(t, Options{MaxSessions: 2})
	ctx := context.Background()
	say := func(source, text string) {
		t.Helper()
		_, err := a.Handle(ctx, message.New(source, text))
		require.NoError(t, err)
	}

	say("alice", "one")
	say("bob", "hi")
	say("alice", "two")
	say("carol", "hey")
	assert.Equal(t, 2, a.Sessions())

	say("alice", "three")
	assert.Equal(t, 5, lastTurns(provider))

	say("bob", "again")
	assert.Equal(t, 1, lastTurns(provider))
}

func TestIdleSessionsExpire(t *testing.T) {
	a, provider := newAssistant(t, Options{SessionTTL: 300 * time.Millisecond})
	ctx := context.Background()

	for i := range 3 {
		_, err := a.Handle(ctx, message.New("dana", "ping"))
		require.NoError(t, err)
		assert.Equal(t, 2*i+1, lastTurns(provider))
		time.Sleep(150 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	_, err := a.Handle(ctx, message.New("dana", "back"))
	require.NoError(t, err)
	assert.Equal(t, 1, lastTurns(provider))
}

func TestClose(t *testing.T) {
	a, _ := newAssistant(t, Options{Transcriber: &fakeSTT{}, Synthesizer: &fakeTTS{}})
	require.NoError(t, a.Close())

	a, _ = newAssistant(t, Options{
		Transcriber: &fakeSTT{closeErr: errors.New("stt")},
		Synthesizer: &fakeTTS{closeErr: errors.New("tts")},
	})
	err := a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing transcriber")
	assert.Contains(t, err.Error(), "closing synthesizer")
}
