// Package options contains flags and options for initializing the handbook RAG server.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	handbooksvc "github.com/kart-io/handbook-rag/internal/handbook"
	cliflag "github.com/kart-io/handbook-rag/pkg/app/cliflag"
	cacheopts "github.com/kart-io/handbook-rag/pkg/options/cache"
	handbookopts "github.com/kart-io/handbook-rag/pkg/options/handbook"
	llmopts "github.com/kart-io/handbook-rag/pkg/options/llm"
	logopts "github.com/kart-io/handbook-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/handbook-rag/pkg/options/milvus"
	redisopts "github.com/kart-io/handbook-rag/pkg/options/redis"
	httpopts "github.com/kart-io/handbook-rag/pkg/options/server/http"
	tracingopts "github.com/kart-io/handbook-rag/pkg/options/tracing"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// MilvusOptions contains Milvus database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// RedisOptions contains Redis configuration for the caches.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// RecordsOptions locates the record files.
	RecordsOptions *handbookopts.RecordsOptions `json:"records" mapstructure:"records"`

	// IndexOptions selects the vector index backend.
	IndexOptions *handbookopts.IndexOptions `json:"index" mapstructure:"index"`

	// SearchOptions tunes namespace search.
	SearchOptions *handbookopts.SearchOptions `json:"search" mapstructure:"search"`

	// ContextOptions bounds the assembled context.
	ContextOptions *handbookopts.ContextOptions `json:"context" mapstructure:"context"`

	// AnswerOptions tunes answer synthesis.
	AnswerOptions *handbookopts.AnswerOptions `json:"answer" mapstructure:"answer"`

	// CacheOptions contains cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// ChatLogOptions contains chat log configuration.
	ChatLogOptions *handbookopts.ChatLogOptions `json:"chatlog" mapstructure:"chatlog"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		RecordsOptions:   handbookopts.NewRecordsOptions(),
		IndexOptions:     handbookopts.NewIndexOptions(),
		SearchOptions:    handbookopts.NewSearchOptions(),
		ContextOptions:   handbookopts.NewContextOptions(),
		AnswerOptions:    handbookopts.NewAnswerOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		ChatLogOptions:   handbookopts.NewChatLogOptions(),
		ShutdownTimeout:  30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat")
	o.RecordsOptions.AddFlags(fss.FlagSet("records"))
	o.IndexOptions.AddFlags(fss.FlagSet("index"))
	o.SearchOptions.AddFlags(fss.FlagSet("search"))
	o.ContextOptions.AddFlags(fss.FlagSet("context"))
	o.AnswerOptions.AddFlags(fss.FlagSet("answer"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.ChatLogOptions.AddFlags(fss.FlagSet("chatlog"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.LogOptions.Complete(); err != nil {
		return err
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := o.RedisOptions.Complete(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	if o.IndexOptions.Backend == handbookopts.IndexBackendMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	if o.RedisOptions.Enabled {
		errs = append(errs, o.RedisOptions.Validate()...)
	}
	errs = append(errs, prefixed("embedding", o.EmbeddingOptions.Validate())...)
	errs = append(errs, prefixed("chat", o.ChatOptions.Validate())...)
	errs = append(errs, o.RecordsOptions.Validate()...)
	errs = append(errs, o.IndexOptions.Validate()...)
	errs = append(errs, o.SearchOptions.Validate()...)
	errs = append(errs, o.ContextOptions.Validate()...)
	errs = append(errs, o.AnswerOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.ChatLogOptions.Validate()...)
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// prefixed qualifies provider errors with their group name.
func prefixed(group string, errs []error) []error {
	out := make([]error, len(errs))
	for i, err := range errs {
		out[i] = fmt.Errorf("%s.%w", group, err)
	}
	return out
}

// Config builds a handbooksvc.Config based on ServerOptions.
func (o *ServerOptions) Config() (*handbooksvc.Config, error) {
	return &handbooksvc.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		TracingOptions:   o.TracingOptions,
		MilvusOptions:    o.MilvusOptions,
		RedisOptions:     o.RedisOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		RecordsOptions:   o.RecordsOptions,
		IndexOptions:     o.IndexOptions,
		SearchOptions:    o.SearchOptions,
		ContextOptions:   o.ContextOptions,
		AnswerOptions:    o.AnswerOptions,
		CacheOptions:     o.CacheOptions,
		ChatLogOptions:   o.ChatLogOptions,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}
