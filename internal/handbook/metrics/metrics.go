// Package metrics 提供问答服务的业务指标收集。
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HandbookMetrics 问答服务业务指标。
type HandbookMetrics struct {
	// 查询指标
	queriesTotal       uint64 // 总查询次数
	queriesCacheHits   uint64 // 缓存命中次数
	queriesCacheMisses uint64 // 缓存未命中次数
	queriesNoContext   uint64 // 无上下文的查询次数
	queriesRejected    uint64 // 参数校验失败次数

	// 检索指标
	searchTotal    uint64  // 总检索次数
	searchDuration float64 // 检索总耗时（秒）
	embedErrors    uint64  // 问题向量化失败次数

	// 命名空间失败次数，按命名空间统计
	nsMu       sync.Mutex
	nsFailures map[string]uint64

	// LLM 调用指标
	synthesisTotal    uint64  // 回答生成次数
	synthesisDuration float64 // 回答生成总耗时（秒）
	synthesisErrors   uint64  // 回答生成失败次数

	// 索引与记录指标
	recordsIndexed uint64 // 已写入向量索引的记录数
	recordsSkipped uint64 // 索引时跳过的记录数
	indexErrors    uint64 // 索引错误次数
	reloads        uint64 // 记录热加载次数
	reloadErrors   uint64 // 热加载失败次数

	chatLogErrors uint64 // 对话日志写入失败次数

	durationMu sync.Mutex
	startTime  time.Time
}

// New 创建指标实例。
func New() *HandbookMetrics {
	return &HandbookMetrics{
		nsFailures: make(map[string]uint64),
		startTime:  time.Now(),
	}
}

// RecordQuery 记录一次完成的查询。
func (m *HandbookMetrics) RecordQuery(cacheHit bool) {
	atomic.AddUint64(&m.queriesTotal, 1)
	if cacheHit {
		atomic.AddUint64(&m.queriesCacheHits, 1)
	} else {
		atomic.AddUint64(&m.queriesCacheMisses, 1)
	}
}

// RecordNoContext 记录没有找到上下文的查询。
func (m *HandbookMetrics) RecordNoContext() {
	atomic.AddUint64(&m.queriesNoContext, 1)
}

// RecordRejected 记录被拒绝的请求。
func (m *HandbookMetrics) RecordRejected() {
	atomic.AddUint64(&m.queriesRejected, 1)
}

// RecordSearch 记录一次命名空间检索。
func (m *HandbookMetrics) RecordSearch(duration time.Duration) {
	atomic.AddUint64(&m.searchTotal, 1)
	m.durationMu.Lock()
	m.searchDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordEmbedError 记录问题向量化失败。
func (m *HandbookMetrics) RecordEmbedError() {
	atomic.AddUint64(&m.embedErrors, 1)
}

// RecordNamespaceFailure 记录单个命名空间查询失败。
func (m *HandbookMetrics) RecordNamespaceFailure(namespace string) {
	m.nsMu.Lock()
	m.nsFailures[namespace]++
	m.nsMu.Unlock()
}

// RecordSynthesis 记录回答生成。
func (m *HandbookMetrics) RecordSynthesis(duration time.Duration, err error) {
	atomic.AddUint64(&m.synthesisTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.synthesisErrors, 1)
	}
	m.durationMu.Lock()
	m.synthesisDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordIndexing 记录一批索引结果。
func (m *HandbookMetrics) RecordIndexing(indexed, skipped int, err error) {
	if err != nil {
		atomic.AddUint64(&m.indexErrors, 1)
		return
	}
	atomic.AddUint64(&m.recordsIndexed, uint64(indexed))
	atomic.AddUint64(&m.recordsSkipped, uint64(skipped))
}

// RecordReload 记录一次记录热加载。
func (m *HandbookMetrics) RecordReload(err error) {
	atomic.AddUint64(&m.reloads, 1)
	if err != nil {
		atomic.AddUint64(&m.reloadErrors, 1)
	}
}

// RecordChatLogError 记录对话日志写入失败。
func (m *HandbookMetrics) RecordChatLogError() {
	atomic.AddUint64(&m.chatLogErrors, 1)
}

// NamespaceFailures 返回各命名空间失败次数的副本。
func (m *HandbookMetrics) NamespaceFailures() map[string]uint64 {
	m.nsMu.Lock()
	defer m.nsMu.Unlock()
	out := make(map[string]uint64, len(m.nsFailures))
	for k, v := range m.nsFailures {
		out[k] = v
	}
	return out
}

// Export 导出 Prometheus 格式指标。
func (m *HandbookMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	counter := func(name, help string, v uint64) {
		writeMetric(&sb, prefix+"_"+name, help, "counter", fmt.Sprintf("%d", v))
	}

	// 查询指标
	counter("queries_total", "Total number of answered questions.", atomic.LoadUint64(&m.queriesTotal))
	counter("queries_cache_hits_total", "Number of cache hits.", atomic.LoadUint64(&m.queriesCacheHits))
	counter("queries_cache_misses_total", "Number of cache misses.", atomic.LoadUint64(&m.queriesCacheMisses))
	counter("queries_no_context_total", "Number of questions without any context.", atomic.LoadUint64(&m.queriesNoContext))
	counter("queries_rejected_total", "Number of rejected requests.", atomic.LoadUint64(&m.queriesRejected))

	hits := atomic.LoadUint64(&m.queriesCacheHits)
	total := hits + atomic.LoadUint64(&m.queriesCacheMisses)
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	writeMetric(&sb, prefix+"_cache_hit_rate", "Cache hit rate (0-1).", "gauge", fmt.Sprintf("%.4f", hitRate))

	m.durationMu.Lock()
	searchDuration := m.searchDuration
	synthesisDuration := m.synthesisDuration
	m.durationMu.Unlock()

	// 检索指标
	counter("search_total", "Total number of namespace searches.", atomic.LoadUint64(&m.searchTotal))
	writeMetric(&sb, prefix+"_search_duration_seconds_total", "Total search duration.", "counter", fmt.Sprintf("%.6f", searchDuration))
	counter("embed_errors_total", "Number of failed question embeddings.", atomic.LoadUint64(&m.embedErrors))

	failures := m.NamespaceFailures()
	names := make([]string, 0, len(failures))
	for ns := range failures {
		names = append(names, ns)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "# HELP %s_namespace_failures_total Number of failed namespace queries.\n", prefix)
	fmt.Fprintf(&sb, "# TYPE %s_namespace_failures_total counter\n", prefix)
	for _, ns := range names {
		fmt.Fprintf(&sb, "%s_namespace_failures_total{namespace=%q} %d\n", prefix, ns, failures[ns])
	}
	sb.WriteString("\n")

	// LLM 调用指标
	counter("synthesis_total", "Total number of answer syntheses.", atomic.LoadUint64(&m.synthesisTotal))
	writeMetric(&sb, prefix+"_synthesis_duration_seconds_total", "Total synthesis duration.", "counter", fmt.Sprintf("%.6f", synthesisDuration))
	counter("synthesis_errors_total", "Number of failed syntheses.", atomic.LoadUint64(&m.synthesisErrors))

	// 索引指标
	counter("records_indexed_total", "Total records written to the vector index.", atomic.LoadUint64(&m.recordsIndexed))
	counter("records_skipped_total", "Total records skipped while indexing.", atomic.LoadUint64(&m.recordsSkipped))
	counter("index_errors_total", "Number of indexing errors.", atomic.LoadUint64(&m.indexErrors))
	counter("record_reloads_total", "Number of record store reloads.", atomic.LoadUint64(&m.reloads))
	counter("record_reload_errors_total", "Number of failed record store reloads.", atomic.LoadUint64(&m.reloadErrors))
	counter("chat_log_errors_total", "Number of failed chat log appends.", atomic.LoadUint64(&m.chatLogErrors))

	// 运行时间
	writeMetric(&sb, prefix+"_uptime_seconds", "Service uptime in seconds.", "gauge", fmt.Sprintf("%.2f", time.Since(m.startTime).Seconds()))

	return sb.String()
}

// Stats 返回当前统计信息（用于 API）。
func (m *HandbookMetrics) Stats() map[string]any {
	m.durationMu.Lock()
	searchDuration := m.searchDuration
	synthesisDuration := m.synthesisDuration
	m.durationMu.Unlock()

	return map[string]any{
		"queries": map[string]any{
			"total":        atomic.LoadUint64(&m.queriesTotal),
			"cache_hits":   atomic.LoadUint64(&m.queriesCacheHits),
			"cache_misses": atomic.LoadUint64(&m.queriesCacheMisses),
			"no_context":   atomic.LoadUint64(&m.queriesNoContext),
			"rejected":     atomic.LoadUint64(&m.queriesRejected),
		},
		"search": map[string]any{
			"total":               atomic.LoadUint64(&m.searchTotal),
			"total_duration_secs": searchDuration,
			"embed_errors":        atomic.LoadUint64(&m.embedErrors),
			"namespace_failures":  m.NamespaceFailures(),
		},
		"synthesis": map[string]any{
			"total":               atomic.LoadUint64(&m.synthesisTotal),
			"total_duration_secs": synthesisDuration,
			"errors":              atomic.LoadUint64(&m.synthesisErrors),
		},
		"indexing": map[string]any{
			"records_indexed": atomic.LoadUint64(&m.recordsIndexed),
			"records_skipped": atomic.LoadUint64(&m.recordsSkipped),
			"errors":          atomic.LoadUint64(&m.indexErrors),
			"reloads":         atomic.LoadUint64(&m.reloads),
			"reload_errors":   atomic.LoadUint64(&m.reloadErrors),
		},
		"chat_log_errors": atomic.LoadUint64(&m.chatLogErrors),
		"uptime_seconds":  time.Since(m.startTime).Seconds(),
	}
}

func writeMetric(sb *strings.Builder, name, help, typ, value string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, typ)
	fmt.Fprintf(sb, "%s %s\n\n", name, value)
}
