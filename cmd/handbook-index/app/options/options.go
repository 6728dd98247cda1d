// Package options contains flags and options for the handbook indexer.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	handbooksvc "github.com/kart-io/handbook-rag/internal/handbook"
	cliflag "github.com/kart-io/handbook-rag/pkg/app/cliflag"
	cacheopts "github.com/kart-io/handbook-rag/pkg/options/cache"
	handbookopts "github.com/kart-io/handbook-rag/pkg/options/handbook"
	llmopts "github.com/kart-io/handbook-rag/pkg/options/llm"
	logopts "github.com/kart-io/handbook-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/handbook-rag/pkg/options/milvus"
	redisopts "github.com/kart-io/handbook-rag/pkg/options/redis"
)

// IndexOptions contains the configuration options for an indexing run.
type IndexOptions struct {
	LogOptions       *logopts.Options             `json:"log" mapstructure:"log"`
	MilvusOptions    *milvusopts.Options          `json:"milvus" mapstructure:"milvus"`
	RedisOptions     *redisopts.Options           `json:"redis" mapstructure:"redis"`
	EmbeddingOptions *llmopts.ProviderOptions     `json:"embedding" mapstructure:"embedding"`
	RecordsOptions   *handbookopts.RecordsOptions `json:"records" mapstructure:"records"`
	IndexOptions     *handbookopts.IndexOptions   `json:"index" mapstructure:"index"`
	CacheOptions     *cacheopts.Options           `json:"cache" mapstructure:"cache"`
}

// NewIndexOptions creates an IndexOptions instance with default values.
func NewIndexOptions() *IndexOptions {
	return &IndexOptions{
		LogOptions:       logopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		RecordsOptions:   handbookopts.NewRecordsOptions(),
		IndexOptions:     handbookopts.NewIndexOptions(),
		CacheOptions:     cacheopts.NewOptions(),
	}
}

// Flags returns the flag sets grouped by section.
func (o *IndexOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.RecordsOptions.AddFlags(fss.FlagSet("records"))
	o.IndexOptions.AddFlags(fss.FlagSet("index"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	return fss
}

// Complete completes all the required options.
func (o *IndexOptions) Complete() error {
	if err := o.LogOptions.Complete(); err != nil {
		return err
	}
	if err := o.RedisOptions.Complete(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	return o.CacheOptions.Complete()
}

// Validate checks whether the options are valid.
func (o *IndexOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.LogOptions.Validate()...)
	if o.IndexOptions.Backend == handbookopts.IndexBackendMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	errs = append(errs, o.RedisOptions.Validate()...)
	for _, err := range o.EmbeddingOptions.Validate() {
		errs = append(errs, fmt.Errorf("embedding.%w", err))
	}
	errs = append(errs, o.RecordsOptions.Validate()...)
	errs = append(errs, o.IndexOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)

	return utilerrors.NewAggregate(errs)
}

// Config builds a handbooksvc.IndexConfig based on IndexOptions.
func (o *IndexOptions) Config() *handbooksvc.IndexConfig {
	return &handbooksvc.IndexConfig{
		LogOptions:       o.LogOptions,
		MilvusOptions:    o.MilvusOptions,
		RedisOptions:     o.RedisOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		RecordsOptions:   o.RecordsOptions,
		IndexOptions:     o.IndexOptions,
		CacheOptions:     o.CacheOptions,
	}
}
