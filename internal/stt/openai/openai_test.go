package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/stt"
)

func newServer(t *testing.T, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribeVerboseJSON(t *testing.T) {
	srv := newServer(t, `{"text":" Bonjour tout le monde ","language":"french","duration":1.2}`, func(r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "fr", r.FormValue("language"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "audio.wav", header.Filename)
	})

	tr, err := New(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, TranscriptionModel: "whisper-1"})
	require.NoError(t, err)

	res, err := tr.Transcribe(context.Background(), []byte("RIFF...."), "audio/wav", stt.Opts{Language: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour tout le monde", res.Text)
	assert.Equal(t, "fr", res.Language)
}

func TestTranscribeNoSpeech(t *testing.T) {
	srv := newServer(t, `{"text":"   "}`, nil)
	tr, err := New(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), []byte("x"), "audio/ogg", stt.Opts{})
	require.ErrorIs(t, err, stt.ErrNoSpeech)
}
