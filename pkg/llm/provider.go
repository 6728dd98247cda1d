// Package llm 提供 Embedding 与 Chat 供应商的统一抽象。
// 问题向量与答案生成可以分别使用不同供应商的模型。
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// EmbeddingProvider 将文本转换为向量。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量，结果顺序与输入一致。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	Name() string
}

// ChatProvider 根据对话消息生成回复。
type ChatProvider interface {
	// Chat 返回助手回复文本。
	Chat(ctx context.Context, messages []Message) (string, error)

	Name() string
}

// Provider 同时支持 Embedding 和 Chat。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Factory 根据配置 map 创建供应商。
type Factory func(config map[string]any) (Provider, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterProvider 注册供应商工厂，同名注册会覆盖。
func RegisterProvider(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// NewProvider 按名称创建供应商。
func NewProvider(name string, config map[string]any) (Provider, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %s)", name, strings.Join(ListProviders(), ", "))
	}
	return factory(config)
}

// NewEmbeddingProvider 按名称创建 Embedding 供应商。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	return NewProvider(name, config)
}

// NewChatProvider 按名称创建 Chat 供应商。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	return NewProvider(name, config)
}

// ListProviders 返回已注册的供应商名称，按字母排序。
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeConfig 将配置 map 解码到供应商配置结构体 dst。
// 空字符串与 nil 值被跳过以保留 dst 中的默认值，时长可以写成 "30s"。
func DecodeConfig(config map[string]any, dst any) error {
	set := make(map[string]any, len(config))
	for k, v := range config {
		if v == nil || v == "" {
			continue
		}
		set[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return dec.Decode(set)
}
