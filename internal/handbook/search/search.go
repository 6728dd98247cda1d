// Package search fans a query vector out over namespaces and merges the hits.
package search

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/internal/handbook/vectorindex"
	"github.com/kart-io/handbook-rag/pkg/infra/pool"
	"github.com/kart-io/handbook-rag/pkg/infra/tracing"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

const tracerName = "handbook-rag/search"

// DefaultHomeBoost multiplies the score of matches from the home namespace.
const DefaultHomeBoost = 1.05

// Registry provides the namespaces searched when no targets are given.
type Registry interface {
	Namespaces() []string
}

// FailureRecorder counts namespaces whose query failed.
type FailureRecorder interface {
	RecordNamespaceFailure(namespace string)
}

// Options tunes the searcher.
type Options struct {
	// HomeBoost must be >= 1. Zero selects DefaultHomeBoost.
	HomeBoost float64
	// QueryTimeout bounds each namespace query. Zero disables the bound.
	QueryTimeout time.Duration
	// Recorder is optional.
	Recorder FailureRecorder
}

// Searcher queries every target namespace concurrently.
type Searcher struct {
	index    vectorindex.Index
	registry Registry
	pool     *pool.Pool
	opts     Options
}

// New creates a Searcher. p may be nil, in which case a goroutine is started
// per namespace.
func New(index vectorindex.Index, registry Registry, p *pool.Pool, opts Options) *Searcher {
	if opts.HomeBoost < 1 {
		opts.HomeBoost = DefaultHomeBoost
	}
	return &Searcher{
		index:    index,
		registry: registry,
		pool:     p,
		opts:     opts,
	}
}

// Search returns at most topK matches ordered by (boosted) score. An empty
// vector or non-positive topK yields no matches and issues no queries. Empty
// targets means every registered namespace. A failing namespace contributes
// nothing.
func (s *Searcher) Search(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter, home string, targets []string) []vectorindex.Match {
	if len(vector) == 0 || topK <= 0 {
		return nil
	}
	if len(targets) == 0 {
		targets = s.registry.Namespaces()
	}
	if len(targets) == 0 {
		return nil
	}

	ctx, span := tracing.Start(ctx, tracerName, "search.namespaces",
		tracing.KeyNamespaces.StringSlice(targets),
		tracing.KeyTopK.Int(topK),
	)
	defer span.End()

	// 每个命名空间一个槽位，按 targets 顺序合并以保证结果确定
	slots := make([][]vectorindex.Match, len(targets))
	var wg sync.WaitGroup
	for i, ns := range targets {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			slots[i] = s.queryNamespace(ctx, vector, topK, ns, filter)
		}
		if !s.submit(task) {
			go task()
		}
	}
	wg.Wait()

	var merged []vectorindex.Match
	for _, slot := range slots {
		merged = append(merged, slot...)
	}

	if home != "" {
		for i := range merged {
			if strings.HasPrefix(merged[i].Namespace, home) {
				merged[i].Score *= s.opts.HomeBoost
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}

	tracing.Annotate(ctx, tracing.KeyMatches.Int(len(merged)))
	return merged
}

func (s *Searcher) submit(task func()) bool {
	if s.pool == nil {
		return false
	}
	if err := s.pool.Submit(task); err != nil {
		logger.Debugw("search pool rejected task, running inline goroutine", "error", err.Error())
		return false
	}
	return true
}

func (s *Searcher) queryNamespace(ctx context.Context, vector []float32, topK int, ns string, filter vectorindex.Filter) []vectorindex.Match {
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	matches, err := s.index.Query(ctx, vector, topK, ns, filter)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			err = errors.ErrHandbookQueryTimeout.WithCause(err)
		}
		logger.Warnw("namespace query failed", "namespace", ns, "code", errors.GetCode(err), "error", err.Error())
		tracing.Fail(ctx, err)
		if s.opts.Recorder != nil {
			s.opts.Recorder.RecordNamespaceFailure(ns)
		}
		return nil
	}

	for i := range matches {
		if matches[i].Namespace == "" {
			matches[i].Namespace = ns
		}
	}
	return matches
}
