// Package ollama 实现本地 Ollama 服务（/api/embed 与 /api/chat）的供应商。
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/handbook-rag/pkg/llm"
	"github.com/kart-io/handbook-rag/pkg/utils/httpclient"
)

// ProviderName 注册名。
const ProviderName = "ollama"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config Ollama 供应商配置。Ollama 不需要 API 密钥。
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	EmbedModel  string        `mapstructure:"embed_model"`
	ChatModel   string        `mapstructure:"chat_model"`
	Temperature float64       `mapstructure:"temperature"`
	KeepAlive   string        `mapstructure:"keep_alive"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// DefaultConfig 返回本机 Ollama 的默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://localhost:11434",
		EmbedModel:  "nomic-embed-text",
		ChatModel:   "llama3.1:8b",
		Temperature: 0.2,
		Timeout:     120 * time.Second,
		MaxRetries:  3,
	}
}

// Provider 通过 HTTP 调用 Ollama。
type Provider struct {
	cfg    *Config
	client *httpclient.Client
}

// NewProvider 是注册到 llm 包的工厂，忽略 api_key 等未知键。
func NewProvider(config map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	if err := llm.DecodeConfig(config, cfg); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		cfg:    cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回 "ollama"。
func (p *Provider) Name() string { return ProviderName }

func (p *Provider) url(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 批量生成向量，返回条数必须与输入一致。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embedRequest{Model: p.cfg.EmbedModel, Input: texts, KeepAlive: p.cfg.KeepAlive}
	var resp embedResponse
	if err := p.client.PostJSON(ctx, p.url("/api/embed"), nil, req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// EmbedSingle 为单个文本生成向量。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []llm.Message  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message llm.Message `json:"message"`
	Done    bool        `json:"done"`
}

// Chat 调用 /api/chat，stream 固定为 false。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := chatRequest{
		Model:     p.cfg.ChatModel,
		Messages:  messages,
		KeepAlive: p.cfg.KeepAlive,
		Options:   map[string]any{"temperature": p.cfg.Temperature},
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.url("/api/chat"), nil, req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if !resp.Done && resp.Message.Content == "" {
		return "", fmt.Errorf("ollama chat: incomplete response")
	}
	return resp.Message.Content, nil
}
