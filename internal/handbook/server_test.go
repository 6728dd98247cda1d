package handbooksvc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheopts "github.com/kart-io/handbook-rag/pkg/options/cache"
	handbookopts "github.com/kart-io/handbook-rag/pkg/options/handbook"
	llmopts "github.com/kart-io/handbook-rag/pkg/options/llm"
	logopts "github.com/kart-io/handbook-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/handbook-rag/pkg/options/milvus"
	redisopts "github.com/kart-io/handbook-rag/pkg/options/redis"
	httpopts "github.com/kart-io/handbook-rag/pkg/options/server/http"
	tracingopts "github.com/kart-io/handbook-rag/pkg/options/tracing"
	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

const chatAnswer = "Mathematik 1 hat 7,5 ECTS."

// fakeOpenAI serves /embeddings and /chat/completions. Text mentioning
// mathematics points one way, everything else the other.
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &req))

			data := make([]map[string]any, len(req.Input))
			for i, text := range req.Input {
				vec := []float32{0, 1}
				if strings.Contains(strings.ToLower(text), "mathe") {
					vec = []float32{1, 0}
				}
				data[i] = map[string]any{"index": i, "embedding": vec}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		case "/chat/completions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": chatAnswer}}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeRecords(t *testing.T) *handbookopts.RecordsOptions {
	t.Helper()
	root := t.TempDir()
	merged := filepath.Join(root, "merged")
	require.NoError(t, os.MkdirAll(merged, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(merged, "BMI_merged.jsonl"), []byte(
		`{"id":"bmi-101","text":"Grundlagen der Informatik","metadata":{"moduleNumber":"BMI-101","moduleNameDe":"Informatik 1","creditPoints":5}}
{"id":"bmi-102","text":"Mathematik 1: Analysis und lineare Algebra","metadata":{"moduleNumber":"BMI-102","moduleNameDe":"Mathematik 1","creditPoints":"7,5"}}
`), 0o644))

	opts := handbookopts.NewRecordsOptions()
	opts.MergedDir = merged
	opts.WebDir = filepath.Join(root, "processed_web")
	opts.Watch = false
	return opts
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func providerOptions(base *llmopts.ProviderOptions, url string) *llmopts.ProviderOptions {
	base.BaseURL = url
	base.APIKey = "test"
	base.MaxRetries = 0
	base.Timeout = 5 * time.Second
	return base
}

func testConfig(t *testing.T, llmURL string) *Config {
	t.Helper()

	index := handbookopts.NewIndexOptions()
	index.Backend = handbookopts.IndexBackendMemory

	chatLog := handbookopts.NewChatLogOptions()
	chatLog.Backend = handbookopts.ChatLogBackendSQLite
	chatLog.DSN = filepath.Join(t.TempDir(), "logs", "chat_log.db")

	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = freeAddr(t)

	cache := cacheopts.NewOptions()
	cache.Backend = cacheopts.BackendMemory

	return &Config{
		HTTPOptions:      httpOpts,
		LogOptions:       logopts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		EmbeddingOptions: providerOptions(llmopts.NewEmbeddingOptions(), llmURL),
		ChatOptions:      providerOptions(llmopts.NewChatOptions(), llmURL),
		RecordsOptions:   writeRecords(t),
		IndexOptions:     index,
		SearchOptions:    handbookopts.NewSearchOptions(),
		ContextOptions:   handbookopts.NewContextOptions(),
		AnswerOptions:    handbookopts.NewAnswerOptions(),
		CacheOptions:     cache,
		ChatLogOptions:   chatLog,
		ShutdownTimeout:  5 * time.Second,
	}
}

func TestServerEndToEnd(t *testing.T) {
	llmSrv := fakeOpenAI(t)
	cfg := testConfig(t, llmSrv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := cfg.NewServer(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	base := "http://" + cfg.HTTPOptions.Addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	t.Run("ask", func(t *testing.T) {
		resp, err := http.Post(base+"/ask", "application/json",
			strings.NewReader(`{"question":"Wie viele ECTS hat Mathematik 1?","program":"BMI"}`))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Answer  string `json:"answer"`
			Sources []struct {
				ID           string  `json:"id"`
				ModuleNumber string  `json:"moduleNumber"`
				Score        float64 `json:"score"`
			} `json:"sources"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, chatAnswer, body.Answer)
		require.Len(t, body.Sources, 1)
		assert.Equal(t, "bmi-102", body.Sources[0].ID)
		assert.Equal(t, "BMI-102", body.Sources[0].ModuleNumber)
	})

	t.Run("validation", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, base+"/ask", strings.NewReader(`{"top_k":0}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Language", "de")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		raw, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(raw), "Ungültige Anfrageparameter")
	})

	t.Run("root and unknown route", func(t *testing.T) {
		resp, err := http.Get(base + "/")
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.JSONEq(t, `{"message":"Handbook RAG API is running","namespaces":["BMI"]}`, string(raw))

		resp, err = http.Get(base + "/nope")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(base + "/metrics")
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Contains(t, string(raw), fmt.Sprintf("%s_handbook_queries_total 1", MetricsNamespace))
		assert.Contains(t, string(raw), fmt.Sprintf("%s_handbook_queries_rejected_total 1", MetricsNamespace))
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewServerFailsOnUnknownProvider(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.ChatOptions.Provider = "nonexistent"

	_, err := cfg.NewServer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat provider")
}

func TestIndexConfigRun(t *testing.T) {
	llmSrv := fakeOpenAI(t)
	full := testConfig(t, llmSrv.URL)

	cfg := &IndexConfig{
		LogOptions:       full.LogOptions,
		MilvusOptions:    full.MilvusOptions,
		RedisOptions:     full.RedisOptions,
		EmbeddingOptions: full.EmbeddingOptions,
		RecordsOptions:   full.RecordsOptions,
		IndexOptions:     full.IndexOptions,
		CacheOptions:     full.CacheOptions,
	}

	report, err := cfg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, map[string]int{"BMI": 2}, report.Namespaces)
}
