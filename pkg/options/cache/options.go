// Package cache provides cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/handbook-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 查询缓存后端。
const (
	BackendNone   = "none"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options 查询缓存配置。
type Options struct {
	// Backend 缓存后端（none, redis, memory）。
	Backend string `json:"backend" mapstructure:"backend"`

	// TTL 查询结果过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// EmbeddingTTL 向量缓存过期时间，0 表示不缓存向量。需要 Redis。
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Backend:      BackendMemory,
		TTL:          1 * time.Hour,
		KeyPrefix:    "handbook:",
		EmbeddingTTL: 24 * time.Hour,
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Backend, p+"cache.backend", o.Backend, "Query cache backend (none, redis, memory).")
	fs.DurationVar(&o.TTL, p+"cache.ttl", o.TTL, "Query cache TTL.")
	fs.StringVar(&o.KeyPrefix, p+"cache.key-prefix", o.KeyPrefix, "Cache key prefix.")
	fs.DurationVar(&o.EmbeddingTTL, p+"cache.embedding-ttl", o.EmbeddingTTL, "Embedding cache TTL in Redis (0 disables).")
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendNone, BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of none, redis, memory", o.Backend))
	}
	if o.Backend != BackendNone && o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if o.EmbeddingTTL < 0 {
		errs = append(errs, fmt.Errorf("cache.embedding-ttl must not be negative"))
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.Backend == "" {
		o.Backend = BackendNone
	}
	return nil
}
