// Package llm holds the settings of an embedding or chat model provider.
// The same struct serves both roles; the command registers it twice, under
// the "embedding" and the "chat" prefix.
package llm

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/handbook-rag/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions selects a registered provider and its model.
type ProviderOptions struct {
	Provider    string        `json:"provider" mapstructure:"provider"`
	BaseURL     string        `json:"base-url" mapstructure:"base-url"`
	APIKey      string        `json:"-" mapstructure:"api-key"`
	Model       string        `json:"model" mapstructure:"model"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max-tokens" mapstructure:"max-tokens"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max-retries" mapstructure:"max-retries"`
}

func newProviderOptions(model string, timeout time.Duration) *ProviderOptions {
	return &ProviderOptions{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com/v1",
		Model:       model,
		Temperature: 0.2,
		Timeout:     timeout,
		MaxRetries:  3,
	}
}

// NewEmbeddingOptions returns the defaults of the embedding provider.
func NewEmbeddingOptions() *ProviderOptions {
	return newProviderOptions("text-embedding-3-small", 30*time.Second)
}

// NewChatOptions returns the defaults of the chat provider.
func NewChatOptions() *ProviderOptions {
	return newProviderOptions("gpt-4o-mini", 60*time.Second)
}

// ToConfigMap renders the options as the config map provider factories
// decode. Model fills both model keys since a provider instance serves one role.
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"api_key":     o.APIKey,
		"embed_model": o.Model,
		"chat_model":  o.Model,
		"temperature": o.Temperature,
		"max_tokens":  o.MaxTokens,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// AddFlags registers the flags under the role prefix, e.g. "chat.model".
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Provider name (openai, ollama).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Provider API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Provider API key.")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature, chat only.")
	fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Completion token limit, 0 for the provider default. Chat only.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Timeout of a single provider call.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Retries of failed provider calls.")
}

// Complete clamps negative retry counts to zero.
func (o *ProviderOptions) Complete() error {
	o.MaxRetries = max(o.MaxRetries, 0)
	return nil
}

// Validate checks the options. Messages carry no role prefix; callers add it.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	for name, v := range map[string]string{"provider": o.Provider, "base-url": o.BaseURL, "model": o.Model} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for openai provider"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2]"))
	}
	if o.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max-tokens must not be negative"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}
