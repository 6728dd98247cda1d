package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/internal/handbook/assembler"
	"github.com/kart-io/handbook-rag/internal/handbook/chatlog"
	"github.com/kart-io/handbook-rag/internal/handbook/metrics"
	"github.com/kart-io/handbook-rag/internal/handbook/search"
	"github.com/kart-io/handbook-rag/pkg/infra/tracing"
	"github.com/kart-io/handbook-rag/pkg/llm"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

const tracerName = "handbook-rag/biz"

// AskRequest 一次问答请求。
type AskRequest struct {
	Question   string
	History    []llm.Message
	Program    string
	Season     string
	ExamType   string
	MinCredits *float64
	MaxCredits *float64
	// TopK 为 0 时使用默认值。
	TopK int
	// Namespaces 为空时检索全部命名空间。
	Namespaces []string
}

// AskResponse 问答结果。
type AskResponse struct {
	Answer  string             `json:"answer"`
	Sources []assembler.Source `json:"sources"`
}

// Service 定义问答服务接口。
type Service interface {
	// Ask 回答一个问题。
	Ask(ctx context.Context, req *AskRequest) (*AskResponse, error)
	// Namespaces 返回当前可检索的命名空间。
	Namespaces() []string
}

// Registry 提供命名空间以及记录文本与元数据。
type Registry interface {
	search.Registry
	assembler.Records
}

// ServiceConfig 问答服务配置。
type ServiceConfig struct {
	// TopK 默认检索数量。
	TopK int
	// MaxTopK 请求可指定的最大检索数量。
	MaxTopK int
	// Limits 上下文组装限制。
	Limits assembler.Limits
}

// HandbookService 组合向量化、检索、上下文组装与回答生成。
type HandbookService struct {
	registry    Registry
	embedder    *QueryEmbedder
	searcher    *search.Searcher
	assembler   *assembler.Assembler
	synthesizer *Synthesizer
	cache       *QueryCache
	chatLog     chatlog.Logger
	metrics     *metrics.HandbookMetrics
	config      ServiceConfig
}

// NewHandbookService 创建问答服务。cache、chatLog 与 m 可以为 nil。
func NewHandbookService(
	registry Registry,
	embedder *QueryEmbedder,
	searcher *search.Searcher,
	synthesizer *Synthesizer,
	cache *QueryCache,
	chatLog chatlog.Logger,
	m *metrics.HandbookMetrics,
	config ServiceConfig,
) *HandbookService {
	if chatLog == nil {
		chatLog = chatlog.Nop{}
	}
	if m == nil {
		m = metrics.New()
	}
	if config.TopK <= 0 {
		config.TopK = 8
	}
	if config.MaxTopK < config.TopK {
		config.MaxTopK = config.TopK
	}
	return &HandbookService{
		registry:    registry,
		embedder:    embedder,
		searcher:    searcher,
		assembler:   assembler.New(registry),
		synthesizer: synthesizer,
		cache:       cache,
		chatLog:     chatLog,
		metrics:     m,
		config:      config,
	}
}

// Namespaces 返回当前可检索的命名空间。
func (s *HandbookService) Namespaces() []string {
	return s.registry.Namespaces()
}

// Ask answers req. The only error is a rejected request; retrieval and model
// failures degrade into the nothing-found message or the localized apology.
func (s *HandbookService) Ask(ctx context.Context, req *AskRequest) (*AskResponse, error) {
	if req == nil || strings.TrimSpace(req.Question) == "" {
		s.metrics.RecordRejected()
		return nil, errors.ErrHandbookEmptyQuestion
	}

	ctx, span := tracing.Start(ctx, tracerName, "handbook.ask")
	defer span.End()

	// 1. 识别语言
	lang := DetectLang(req.Question)
	tracing.Annotate(ctx, tracing.KeyLang.String(lang), tracing.KeyProgram.String(req.Program))

	// 2. 查询缓存，带历史的对话不走缓存
	useCache := len(req.History) == 0 && s.cache.Enabled()
	if useCache {
		if cached, err := s.cache.Get(ctx, req); err == nil && cached != nil {
			s.metrics.RecordQuery(true)
			tracing.Annotate(ctx, tracing.KeyCacheHit.Bool(true))
			return cloneResponse(cached), nil
		}
	}

	// 3. 问题向量化
	vector := s.embedder.Embed(ctx, QueryText(req.Question, req.Program))
	if len(vector) == 0 {
		s.metrics.RecordEmbedError()
	}

	// 4. 过滤条件与检索数量
	filter := search.BuildFilter(req.Season, req.ExamType, req.MinCredits, req.MaxCredits)
	topK := s.topK(req.TopK)

	// 5. 命名空间检索
	searchStart := time.Now()
	matches := s.searcher.Search(ctx, vector, topK, filter, req.Program, req.Namespaces)
	s.metrics.RecordSearch(time.Since(searchStart))

	// 6. 组装上下文
	contextText, sources := s.assembler.Assemble(matches, s.config.Limits)
	tracing.Annotate(ctx, tracing.KeySources.Int(len(sources)))

	// 7/8. 生成回答
	resp := &AskResponse{Sources: sources}
	cacheable := len(vector) > 0
	if contextText == "" {
		s.metrics.RecordNoContext()
		resp.Answer = NothingFound(lang)
		resp.Sources = []assembler.Source{}
	} else {
		synthStart := time.Now()
		answer, err := s.synthesizer.Synthesize(ctx, contextText, req.Question, req.History)
		s.metrics.RecordSynthesis(time.Since(synthStart), err)
		if err != nil {
			tracing.Fail(ctx, err)
			cacheable = false
		}
		resp.Answer = answer
	}

	// 9. 指标、对话日志与缓存
	s.metrics.RecordQuery(false)
	if err := s.chatLog.Append(ctx, chatlog.NewEntry(req.Question, resp.Answer, lang, resp.Sources)); err != nil {
		s.metrics.RecordChatLogError()
		logger.Warnw("failed to append chat log", "error", err.Error())
	}
	if useCache && cacheable {
		// 缓存写入失败不影响正常返回，错误已在 cache.Set 中记录
		_ = s.cache.Set(ctx, req, cloneResponse(resp))
	}

	logger.Infow("question answered",
		"lang", lang,
		"program", req.Program,
		"top_k", topK,
		"matches", len(matches),
		"sources", len(resp.Sources),
	)
	return resp, nil
}

func (s *HandbookService) topK(requested int) int {
	k := requested
	if k <= 0 {
		k = s.config.TopK
	}
	if k > s.config.MaxTopK {
		k = s.config.MaxTopK
	}
	return k
}

// Stats 返回服务统计信息。
func (s *HandbookService) Stats() map[string]any {
	return map[string]any{
		"namespaces": s.registry.Namespaces(),
		"cache":      s.cache.Stats(),
		"metrics":    s.metrics.Stats(),
	}
}

func cloneResponse(r *AskResponse) *AskResponse {
	out := &AskResponse{Answer: r.Answer, Sources: make([]assembler.Source, len(r.Sources))}
	copy(out.Sources, r.Sources)
	return out
}

// 确保 HandbookService 实现了 Service 接口。
var _ Service = (*HandbookService)(nil)
