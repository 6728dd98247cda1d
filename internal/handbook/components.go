package handbooksvc

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/handbook-rag/internal/handbook/recordstore"
	"github.com/kart-io/handbook-rag/internal/handbook/vectorindex"
	"github.com/kart-io/handbook-rag/pkg/component/milvus"
	"github.com/kart-io/handbook-rag/pkg/component/redis"
	"github.com/kart-io/handbook-rag/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/handbook-rag/pkg/llm/ollama"
	_ "github.com/kart-io/handbook-rag/pkg/llm/openai"
	cacheopts "github.com/kart-io/handbook-rag/pkg/options/cache"
	handbookopts "github.com/kart-io/handbook-rag/pkg/options/handbook"
	llmopts "github.com/kart-io/handbook-rag/pkg/options/llm"
	milvusopts "github.com/kart-io/handbook-rag/pkg/options/milvus"
	redisopts "github.com/kart-io/handbook-rag/pkg/options/redis"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

// closer releases a component on shutdown.
type closer func(ctx context.Context)

// loadRecords 加载记录并包装为 Holder。
func loadRecords(opts *handbookopts.RecordsOptions) (*recordstore.Holder, error) {
	cfg := recordstore.Config{MergedDir: opts.MergedDir, WebDir: opts.WebDir}
	store := recordstore.New(cfg)
	if err := store.Load(); err != nil {
		return nil, errors.ErrHandbookLoadFailed.WithCause(err)
	}
	logger.Infow("Handbook records loaded",
		"records", store.Len(),
		"skipped_lines", store.Skipped(),
		"namespaces", len(store.Namespaces()),
	)
	return recordstore.NewHolder(cfg, store), nil
}

// newVectorIndex 按配置创建向量索引后端。只有索引命令传入 recreate=true，服务端从不删除集合。
func newVectorIndex(ctx context.Context, opts *handbookopts.IndexOptions, milvusOpts *milvusopts.Options, recreate bool) (vectorindex.Index, closer, error) {
	if opts.Backend == handbookopts.IndexBackendMemory {
		logger.Info("Using in-memory vector index")
		return vectorindex.NewMemory(), nil, nil
	}

	client, err := milvus.New(ctx, milvusOpts)
	if err != nil {
		return nil, nil, errors.ErrVectorUnavailable.WithCause(err)
	}
	index := vectorindex.NewMilvusIndex(client, vectorindex.MilvusConfig{
		Collection: milvusOpts.Collection,
		Dimension:  milvusOpts.Dimension,
		Recreate:   recreate && milvusOpts.Recreate,
	})
	if err := index.EnsureCollection(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("failed to prepare milvus collection: %w", err)
	}
	rows, err := index.Count(ctx)
	if err != nil {
		logger.Warnw("failed to read milvus collection stats", "error", err.Error())
	}
	logger.Infow("Milvus vector index initialized",
		"address", milvusOpts.Address,
		"collection", milvusOpts.Collection,
		"dimension", milvusOpts.Dimension,
		"rows", rows,
	)
	return index, func(ctx context.Context) { _ = client.Close(ctx) }, nil
}

// newRedis 连接 Redis。未启用或连接失败时返回 nil，依赖 Redis 的缓存随之禁用。
func newRedis(ctx context.Context, opts *redisopts.Options) (*goredis.Client, closer) {
	if opts == nil || !opts.Enabled {
		return nil, nil
	}
	client, err := redis.New(ctx, opts)
	if err != nil {
		logger.Warnw("failed to connect to redis, redis backed caches will be disabled",
			"addr", opts.Addr(),
			"error", err.Error(),
		)
		return nil, nil
	}
	logger.Infow("Redis client initialized", "addr", opts.Addr())
	return client.Client(), func(context.Context) { _ = client.Close() }
}

// newEmbeddingProvider 创建 Embedding 供应商，Redis 可用且配置了 TTL 时加一层向量缓存。
func newEmbeddingProvider(opts *llmopts.ProviderOptions, cacheOpts *cacheopts.Options, rdb *goredis.Client) (llm.EmbeddingProvider, error) {
	provider, err := llm.NewEmbeddingProvider(opts.Provider, opts.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Provider,
		"model", opts.Model,
	)

	if rdb == nil || cacheOpts == nil || cacheOpts.EmbeddingTTL <= 0 {
		return provider, nil
	}
	logger.Infow("Embedding cache enabled", "ttl", cacheOpts.EmbeddingTTL.String())
	return llm.NewCachedEmbeddingProvider(provider, rdb, &llm.EmbeddingCacheConfig{
		Model:     opts.Model,
		TTL:       cacheOpts.EmbeddingTTL,
		KeyPrefix: cacheOpts.KeyPrefix + "emb:",
	}), nil
}

// runClosers 逆序释放组件。
func runClosers(ctx context.Context, closers []closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] != nil {
			closers[i](ctx)
		}
	}
}
