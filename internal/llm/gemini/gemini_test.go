package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/llm"
)

func TestBuildRequestMergesRolesAndSetsSampling(t *testing.T) {
	p := &Provider{model: "gemini-1.5-flash", topP: 0.8, topK: 40}

	gcfg, contents := p.buildRequest(llm.Request{
		System:      "be nice",
		Temperature: 0.7,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
			{Role: llm.RoleUser, Content: "how are you"},
			{Role: llm.RoleUser, Content: "?"},
		},
	})

	require.NotNil(t, gcfg.SystemInstruction)
	assert.Equal(t, "be nice", gcfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, gcfg.Temperature)
	assert.InDelta(t, 0.7, *gcfg.Temperature, 1e-6)
	assert.InDelta(t, 0.8, *gcfg.TopP, 1e-6)
	assert.InDelta(t, 40, *gcfg.TopK, 1e-6)

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
	assert.Len(t, contents[2].Parts, 2)
}

func TestCompleteAgainstFakeServer(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  Bonjour !  "}]}}]}`))
	}))
	defer srv.Close()

	p, err := New(context.Background(), config.GeminiConfig{APIKey: "k", Model: "gemini-test"}, WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), llm.Request{
		System:   "identity",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "salut"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", resp.Text)
	assert.Contains(t, gotBody, "contents")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), config.GeminiConfig{})
	require.Error(t, err)
}
