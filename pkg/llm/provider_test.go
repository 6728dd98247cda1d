package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name  string
	calls atomic.Int32
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = []float32{float32(len(text)), 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *mockProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return "mock response", nil
}

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewProvider("test-provider", map[string]any{"name": "custom-name"})
	require.NoError(t, err)
	assert.Equal(t, "custom-name", provider.Name())

	_, err = NewProvider("unknown-provider", nil)
	assert.Error(t, err)
}

func TestNewEmbeddingAndChatProvider(t *testing.T) {
	RegisterProvider("full", func(map[string]any) (Provider, error) {
		return &mockProvider{name: "full"}, nil
	})
	RegisterProvider("alpha", func(map[string]any) (Provider, error) {
		return &mockProvider{name: "alpha"}, nil
	})

	ep, err := NewEmbeddingProvider("full", nil)
	require.NoError(t, err)
	assert.Equal(t, "full", ep.Name())

	cp, err := NewChatProvider("alpha", nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", cp.Name())

	_, err = NewChatProvider("missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "missing"`)
	assert.Contains(t, err.Error(), "alpha")

	names := ListProviders()
	assert.Contains(t, names, "full")
	assert.IsIncreasing(t, names)
}

func TestCachedEmbeddingProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	inner := &mockProvider{name: "mock"}
	cached := NewCachedEmbeddingProvider(inner, rdb, &EmbeddingCacheConfig{
		Model:     "text-embedding-3-small",
		TTL:       time.Hour,
		KeyPrefix: "handbook:emb:",
	})
	ctx := context.Background()

	v1, err := cached.EmbedSingle(ctx, "Prüfungsform")
	require.NoError(t, err)
	v2, err := cached.EmbedSingle(ctx, "Prüfungsform")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.True(t, mr.Exists(cached.CacheKey("Prüfungsform")))

	out, err := cached.Embed(ctx, []string{"Prüfungsform", "Leistungspunkte"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, v1, out[0])
	assert.Equal(t, int32(2), inner.calls.Load())

	assert.Equal(t, "mock-cached", cached.Name())
}

func TestCachedEmbeddingProviderKeyDependsOnModel(t *testing.T) {
	a := NewCachedEmbeddingProvider(&mockProvider{}, nil, &EmbeddingCacheConfig{Model: "a", KeyPrefix: "emb:"})
	b := NewCachedEmbeddingProvider(&mockProvider{}, nil, &EmbeddingCacheConfig{Model: "b", KeyPrefix: "emb:"})
	assert.NotEqual(t, a.CacheKey("x"), b.CacheKey("x"))
	assert.Len(t, a.CacheKey("x"), len("emb:")+64)
}

func TestCachedEmbeddingProviderSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	inner := &mockProvider{name: "mock"}
	cached := NewCachedEmbeddingProvider(inner, rdb, nil)

	v, err := cached.EmbedSingle(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0.2, 0.3}, v)
}

func TestDecodeConfig(t *testing.T) {
	type cfg struct {
		BaseURL    string        `mapstructure:"base_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
		MaxRetries int           `mapstructure:"max_retries"`
	}
	c := &cfg{BaseURL: "http://default", Timeout: time.Second, MaxRetries: 3}

	require.NoError(t, DecodeConfig(map[string]any{
		"base_url":    "",
		"timeout":     "45s",
		"max_retries": 0,
		"unknown":     true,
	}, c))
	assert.Equal(t, "http://default", c.BaseURL, "empty strings keep the default")
	assert.Equal(t, 45*time.Second, c.Timeout)
	assert.Equal(t, 0, c.MaxRetries)

	require.NoError(t, DecodeConfig(map[string]any{"timeout": 2 * time.Minute}, c))
	assert.Equal(t, 2*time.Minute, c.Timeout)

	assert.Error(t, DecodeConfig(map[string]any{"max_retries": "many"}, c))
}
