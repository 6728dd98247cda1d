package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/pkg/llm"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

// QueryEmbedder 将问题转换为查询向量。
type QueryEmbedder struct {
	provider llm.EmbeddingProvider
	timeout  time.Duration
}

// NewQueryEmbedder 创建查询向量化器。timeout 为 0 时不额外限制调用时间。
func NewQueryEmbedder(provider llm.EmbeddingProvider, timeout time.Duration) *QueryEmbedder {
	return &QueryEmbedder{provider: provider, timeout: timeout}
}

// Embed returns the embedding of text. Provider errors are logged and yield an
// empty vector, which makes the search return nothing.
func (e *QueryEmbedder) Embed(ctx context.Context, text string) []float32 {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	vec, err := e.provider.EmbedSingle(ctx, text)
	if err != nil {
		logger.Warnw("failed to embed question", "provider", e.provider.Name(), "error", err.Error())
		return nil
	}
	return vec
}

// EmbedBatch embeds texts in one provider call. Unlike Embed it reports errors.
func (e *QueryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	vecs, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, errors.ErrLLMUnavailable.WithCause(err)
	}
	return vecs, nil
}

func (e *QueryEmbedder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// QueryText 返回用于向量化的问题文本：指定了专业且问题中未提及时，在末尾追加专业代码。
func QueryText(question, program string) string {
	question = strings.TrimSpace(question)
	if program == "" || strings.Contains(strings.ToLower(question), strings.ToLower(program)) {
		return question
	}
	return question + " " + program
}
