// Package openai 实现 OpenAI 兼容接口（/embeddings 与 /chat/completions）的供应商。
// 导入即注册：
//
//	import _ "github.com/kart-io/handbook-rag/pkg/llm/openai"
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/handbook-rag/pkg/llm"
	"github.com/kart-io/handbook-rag/pkg/utils/httpclient"
)

// ProviderName 注册名。
const ProviderName = "openai"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config OpenAI 供应商配置，键名与 llm.DecodeConfig 的输入一致。
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Organization string        `mapstructure:"organization"`
	EmbedModel   string        `mapstructure:"embed_model"`
	ChatModel    string        `mapstructure:"chat_model"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// DefaultConfig 返回 api.openai.com 的默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		EmbedModel:  "text-embedding-3-small",
		ChatModel:   "gpt-4o-mini",
		Temperature: 0.2,
		Timeout:     120 * time.Second,
		MaxRetries:  3,
	}
}

// Provider 通过 HTTP 调用 OpenAI 兼容接口。
type Provider struct {
	cfg    *Config
	client *httpclient.Client
}

// NewProvider 是注册到 llm 包的工厂，api_key 必填。
func NewProvider(config map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	if err := llm.DecodeConfig(config, cfg); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商，不做校验。
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		cfg:    cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回 "openai"。
func (p *Provider) Name() string { return ProviderName }

func (p *Provider) post(ctx context.Context, path string, in, out any) error {
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	if p.cfg.Organization != "" {
		headers["OpenAI-Organization"] = p.cfg.Organization
	}
	return p.client.PostJSON(ctx, strings.TrimRight(p.cfg.BaseURL, "/")+path, headers, in, out)
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed 批量生成向量。接口返回的 data 可能乱序，按 index 归位，缺失任何一条都视为失败。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	if err := p.post(ctx, "/embeddings", embeddingRequest{Model: p.cfg.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("openai embeddings: no vector for input %d", i)
		}
	}
	return out, nil
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
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message llm.Message `json:"message"`
	} `json:"choices"`
}

// Chat 调用 /chat/completions（非流式），返回第一个候选的内容。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := chatRequest{
		Model:       p.cfg.ChatModel,
		Messages:    messages,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}

	var resp chatResponse
	if err := p.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
