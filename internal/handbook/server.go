// Package handbooksvc provides the handbook question answering server.
package handbooksvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/handbook-rag/internal/handbook/assembler"
	"github.com/kart-io/handbook-rag/internal/handbook/biz"
	"github.com/kart-io/handbook-rag/internal/handbook/chatlog"
	"github.com/kart-io/handbook-rag/internal/handbook/handler"
	"github.com/kart-io/handbook-rag/internal/handbook/metrics"
	"github.com/kart-io/handbook-rag/internal/handbook/recordstore"
	"github.com/kart-io/handbook-rag/internal/handbook/router"
	"github.com/kart-io/handbook-rag/internal/handbook/search"
	"github.com/kart-io/handbook-rag/pkg/infra/app"
	"github.com/kart-io/handbook-rag/pkg/infra/pool"
	"github.com/kart-io/handbook-rag/pkg/infra/server"
	httpserver "github.com/kart-io/handbook-rag/pkg/infra/server/transport/http"
	"github.com/kart-io/handbook-rag/pkg/infra/tracing"
	"github.com/kart-io/handbook-rag/pkg/llm"
	cacheopts "github.com/kart-io/handbook-rag/pkg/options/cache"
	handbookopts "github.com/kart-io/handbook-rag/pkg/options/handbook"
	llmopts "github.com/kart-io/handbook-rag/pkg/options/llm"
	logopts "github.com/kart-io/handbook-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/handbook-rag/pkg/options/milvus"
	redisopts "github.com/kart-io/handbook-rag/pkg/options/redis"
	httpopts "github.com/kart-io/handbook-rag/pkg/options/server/http"
	tracingopts "github.com/kart-io/handbook-rag/pkg/options/tracing"
	"github.com/kart-io/handbook-rag/pkg/validator"
)

// Name is the name of the application.
const Name = "handbook-rag"

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "rag"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	TracingOptions   *tracingopts.Options
	MilvusOptions    *milvusopts.Options
	RedisOptions     *redisopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	RecordsOptions   *handbookopts.RecordsOptions
	IndexOptions     *handbookopts.IndexOptions
	SearchOptions    *handbookopts.SearchOptions
	ContextOptions   *handbookopts.ContextOptions
	AnswerOptions    *handbookopts.AnswerOptions
	CacheOptions     *cacheopts.Options
	ChatLogOptions   *handbookopts.ChatLogOptions
	ShutdownTimeout  time.Duration
}

// Server represents the handbook server.
type Server struct {
	runnables       []server.Runnable
	closers         []closer
	shutdownTimeout time.Duration
}

// NewServer initializes and returns a new Server instance. Components created
// before a failure are released before the error is returned.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	printBanner(cfg)

	s := &Server{shutdownTimeout: cfg.ShutdownTimeout}
	defer func() {
		if err != nil {
			runClosers(context.Background(), s.closers)
		}
	}()

	// 1. 初始化日志与链路追踪
	if err := cfg.LogOptions.Init(Name, app.GetVersion()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting handbook service...")

	tp, err := tracing.NewProvider(cfg.TracingOptions, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func(ctx context.Context) { _ = tp.Shutdown(ctx) })

	// 2. 加载记录
	holder, err := loadRecords(cfg.RecordsOptions)
	if err != nil {
		return nil, err
	}

	// 3. 初始化向量索引
	index, closeIndex, err := newVectorIndex(ctx, cfg.IndexOptions, cfg.MilvusOptions, false)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeIndex)

	// 4. 初始化 Redis（可选）
	rdb, closeRedis := newRedis(ctx, cfg.RedisOptions)
	s.closers = append(s.closers, closeRedis)

	// 5. 初始化 LLM 供应商
	embedProvider, err := newEmbeddingProvider(cfg.EmbeddingOptions, cfg.CacheOptions, rdb)
	if err != nil {
		return nil, err
	}
	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	// 6. 初始化 Biz 层
	m := metrics.New()

	searchPool, err := pool.NewPool(pool.SearchPool, pool.SearchPoolConfig(cfg.SearchOptions.Workers))
	if err != nil {
		return nil, fmt.Errorf("failed to create search pool: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) { searchPool.Release() })

	searcher := search.New(index, holder, searchPool, search.Options{
		HomeBoost:    cfg.SearchOptions.HomeBoost,
		QueryTimeout: cfg.SearchOptions.QueryTimeout,
		Recorder:     m,
	})
	embedder := biz.NewQueryEmbedder(embedProvider, cfg.EmbeddingOptions.Timeout)
	synthesizer := biz.NewSynthesizer(chatProvider, biz.SynthesizerConfig{
		HistoryTurns: cfg.AnswerOptions.HistoryTurns,
		Timeout:      cfg.ChatOptions.Timeout,
	})
	queryCache := newQueryCache(cfg.CacheOptions, rdb)

	chatLog, err := chatlog.New(cfg.ChatLogOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat log: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) { _ = chatLog.Close() })

	service := biz.NewHandbookService(holder, embedder, searcher, synthesizer, queryCache, chatLog, m, biz.ServiceConfig{
		TopK:    cfg.SearchOptions.TopK,
		MaxTopK: cfg.SearchOptions.MaxTopK,
		Limits: assembler.Limits{
			ScoreThreshold: cfg.ContextOptions.ScoreThreshold,
			PerModuleCap:   cfg.ContextOptions.PerModuleCap,
			MaxChunks:      cfg.ContextOptions.MaxChunks,
			MaxChars:       cfg.ContextOptions.MaxChars,
		},
	})
	logger.Infow("Handbook service initialized",
		"index.backend", cfg.IndexOptions.Backend,
		"cache.enabled", queryCache.Enabled(),
		"chatlog.backend", cfg.ChatLogOptions.Backend,
	)

	// 7. 内存索引在启动与每次重载后重建
	var reindex func(context.Context)
	if cfg.IndexOptions.Backend == handbookopts.IndexBackendMemory {
		indexPool, err := pool.NewPool(pool.IndexPool, pool.IndexPoolConfig(cfg.IndexOptions.Workers))
		if err != nil {
			return nil, fmt.Errorf("failed to create index pool: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) { indexPool.Release() })

		indexer := biz.NewIndexer(holder, index, embedder, indexPool, biz.IndexerConfig{
			BatchSize: cfg.IndexOptions.BatchSize,
			Recorder:  m,
		})
		reindex = func(ctx context.Context) {
			if _, err := indexer.IndexAll(ctx); err != nil {
				logger.Errorw("in-memory indexing failed", "error", err.Error())
			}
		}
		reindex(ctx)
	}

	holder.OnReload(func(err error) {
		m.RecordReload(err)
		if err != nil {
			return
		}
		if reindex != nil {
			reindex(context.Background())
		}
		if err := queryCache.Clear(context.Background()); err != nil {
			logger.Warnw("failed to clear query cache after reload", "error", err.Error())
		}
	})

	if cfg.RecordsOptions.Watch {
		s.runnables = append(s.runnables, recordstore.NewWatcher(holder, cfg.RecordsOptions.Debounce))
	}

	// 8. 初始化 HTTP 服务器与路由
	validator.InstallGin()
	httpServer, err := httpserver.NewServer(cfg.HTTPOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create http server: %w", err)
	}
	router.Register(httpServer.Engine(), handler.NewHandbookHandler(service, holder, m, MetricsNamespace))
	s.runnables = append(s.runnables, httpServer)

	logger.Info("Handbook service is ready")
	return s, nil
}

// newQueryCache 按配置创建查询缓存。Redis 不可用时 redis 后端退化为禁用。
func newQueryCache(opts *cacheopts.Options, rdb *goredis.Client) *biz.QueryCache {
	backend := opts.Backend
	if backend == cacheopts.BackendRedis && rdb == nil {
		logger.Warn("Query cache backend is redis but no redis client is available, cache disabled")
		backend = cacheopts.BackendNone
	}
	return biz.NewQueryCache(rdb, &biz.QueryCacheConfig{
		Backend:   backend,
		TTL:       opts.TTL,
		KeyPrefix: opts.KeyPrefix,
	})
}

// Run starts every runnable and blocks until ctx is cancelled, then shuts down
// in reverse start order.
func (s *Server) Run(ctx context.Context) error {
	started := make([]server.Runnable, 0, len(s.runnables))
	var runErr error
	for _, r := range s.runnables {
		if err := r.Start(ctx); err != nil {
			runErr = fmt.Errorf("failed to start %s: %w", r.Name(), err)
			break
		}
		started = append(started, r)
	}

	if runErr == nil {
		<-ctx.Done()
		logger.Info("Shutting down handbook service...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(shutdownCtx); err != nil {
			logger.Errorw("failed to stop component", "component", started[i].Name(), "error", err.Error())
		}
	}
	runClosers(shutdownCtx, s.closers)

	logger.Info("Handbook service stopped")
	return runErr
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Records: %s, %s\n", cfg.RecordsOptions.MergedDir, cfg.RecordsOptions.WebDir)
	fmt.Printf("  Index: %s\n", cfg.IndexOptions.Backend)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
}
