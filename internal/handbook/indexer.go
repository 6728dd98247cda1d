package handbooksvc

import (
	"context"
	"fmt"
	"sort"

	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/internal/handbook/biz"
	"github.com/kart-io/handbook-rag/internal/handbook/metrics"
	"github.com/kart-io/handbook-rag/pkg/infra/app"
	"github.com/kart-io/handbook-rag/pkg/infra/pool"
	cacheopts "github.com/kart-io/handbook-rag/pkg/options/cache"
	handbookopts "github.com/kart-io/handbook-rag/pkg/options/handbook"
	llmopts "github.com/kart-io/handbook-rag/pkg/options/llm"
	logopts "github.com/kart-io/handbook-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/handbook-rag/pkg/options/milvus"
	redisopts "github.com/kart-io/handbook-rag/pkg/options/redis"
)

// IndexerName is the name of the indexing application.
const IndexerName = "handbook-index"

// IndexConfig contains the configuration of a one-shot indexing run.
type IndexConfig struct {
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	RedisOptions     *redisopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	RecordsOptions   *handbookopts.RecordsOptions
	IndexOptions     *handbookopts.IndexOptions
	CacheOptions     *cacheopts.Options
}

// Run loads every record, embeds it and upserts it into the configured index.
func (cfg *IndexConfig) Run(ctx context.Context) (*biz.IndexReport, error) {
	if err := cfg.LogOptions.Init(IndexerName, app.GetVersion()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var closers []closer
	defer func() { runClosers(context.Background(), closers) }()

	holder, err := loadRecords(cfg.RecordsOptions)
	if err != nil {
		return nil, err
	}

	index, closeIndex, err := newVectorIndex(ctx, cfg.IndexOptions, cfg.MilvusOptions, true)
	if err != nil {
		return nil, err
	}
	closers = append(closers, closeIndex)
	if cfg.IndexOptions.Backend == handbookopts.IndexBackendMemory {
		logger.Warn("index.backend is memory, vectors are discarded when the run ends")
	}

	rdb, closeRedis := newRedis(ctx, cfg.RedisOptions)
	closers = append(closers, closeRedis)

	embedProvider, err := newEmbeddingProvider(cfg.EmbeddingOptions, cfg.CacheOptions, rdb)
	if err != nil {
		return nil, err
	}

	indexPool, err := pool.NewPool(pool.IndexPool, pool.IndexPoolConfig(cfg.IndexOptions.Workers))
	if err != nil {
		return nil, fmt.Errorf("failed to create index pool: %w", err)
	}
	closers = append(closers, func(context.Context) { indexPool.Release() })

	indexer := biz.NewIndexer(
		holder,
		index,
		biz.NewQueryEmbedder(embedProvider, cfg.EmbeddingOptions.Timeout),
		indexPool,
		biz.IndexerConfig{BatchSize: cfg.IndexOptions.BatchSize, Recorder: metrics.New()},
	)
	return indexer.IndexAll(ctx)
}

// PrintReport writes a per-namespace summary of an indexing run.
func PrintReport(report *biz.IndexReport) {
	if report == nil {
		return
	}
	namespaces := make([]string, 0, len(report.Namespaces))
	for ns := range report.Namespaces {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		fmt.Printf("  %-24s %6d\n", ns, report.Namespaces[ns])
	}
	fmt.Printf("Indexed %d records, skipped %d, in %s\n", report.Indexed, report.Skipped, report.Duration)
}
