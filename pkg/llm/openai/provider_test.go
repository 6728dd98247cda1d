package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/handbook-rag/pkg/llm"
	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

const testAPIKey = "test-key"

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantError bool
	}{
		{"valid config", map[string]any{"api_key": testAPIKey}, false},
		{"custom config", map[string]any{
			"api_key":     testAPIKey,
			"embed_model": "text-embedding-3-large",
			"chat_model":  "gpt-4o",
			"timeout":     "5s",
			"max_tokens":  "512",
			"temperature": 0.0,
		}, false},
		{"missing api_key", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ProviderName, p.Name())
		})
	}
}

func TestRegistered(t *testing.T) {
	p, err := llm.NewChatProvider(ProviderName, map[string]any{"api_key": testAPIKey})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
}

func newTestProvider(url string) *Provider {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.APIKey = testAPIKey
	cfg.MaxRetries = 0
	return NewProviderWithConfig(cfg)
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	out, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, out)

	single, err := p.EmbedSingle(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, single)
}

func TestEmbedEmptyInput(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:1")
	out, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.InDelta(t, 0.2, req.Temperature, 1e-9)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Die Prüfung ist eine Klausur."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	got, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "Wie wird geprüft?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Die Prüfung ist eine Klausur.", got)
}

func TestChatErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).Chat(context.Background(), nil)
	assert.ErrorContains(t, err, "no choices")
}

func TestEmbedMissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,1]}]}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).Embed(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "no vector for input 1")
}
