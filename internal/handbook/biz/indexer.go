package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/internal/handbook/recordstore"
	"github.com/kart-io/handbook-rag/internal/handbook/vectorindex"
	"github.com/kart-io/handbook-rag/pkg/infra/pool"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

const (
	// DefaultBatchSize 每批向量化与写入的记录数。
	DefaultBatchSize = 100
	// SnippetRunes 写入索引元数据的文本片段长度。
	SnippetRunes = 300
	// MinEmbeddingRunes 向量化文本短于该长度的记录被跳过。
	MinEmbeddingRunes = 10

	noData = "no data"
)

// RecordSource 提供待索引的记录。
type RecordSource interface {
	Records() ([]recordstore.Record, error)
}

// IndexRecorder 记录索引指标。
type IndexRecorder interface {
	RecordIndexing(indexed, skipped int, err error)
}

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// BatchSize 每批记录数，<= 0 时使用 DefaultBatchSize。
	BatchSize int
	// Recorder 可选的指标记录器。
	Recorder IndexRecorder
}

// IndexReport 汇总一次索引的结果。
type IndexReport struct {
	Indexed    int            `json:"indexed"`
	Skipped    int            `json:"skipped"`
	Namespaces map[string]int `json:"namespaces"`
	Duration   time.Duration  `json:"duration"`
}

// Indexer 将记录向量化后按命名空间批量写入向量索引。
type Indexer struct {
	source   RecordSource
	index    vectorindex.Index
	embedder *QueryEmbedder
	pool     *pool.Pool
	config   IndexerConfig
}

// NewIndexer 创建索引器。p 为 nil 时各命名空间在独立协程中处理。
func NewIndexer(source RecordSource, index vectorindex.Index, embedder *QueryEmbedder, p *pool.Pool, config IndexerConfig) *Indexer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Indexer{
		source:   source,
		index:    index,
		embedder: embedder,
		pool:     p,
		config:   config,
	}
}

type namespaceBatch struct {
	namespace string
	records   []recordstore.Record
}

// IndexAll reads every record and upserts it into the namespace it was loaded
// from. Namespaces are processed concurrently; the first error is returned
// after every namespace has finished.
func (ix *Indexer) IndexAll(ctx context.Context) (*IndexReport, error) {
	start := time.Now()
	records, err := ix.source.Records()
	if err != nil {
		return nil, errors.ErrHandbookLoadFailed.WithCause(err)
	}

	groups := groupByNamespace(records)
	report := &IndexReport{Namespaces: make(map[string]int, len(groups))}

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	for _, g := range groups {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			indexed, skipped, err := ix.indexNamespace(ctx, g.namespace, g.records)

			mu.Lock()
			defer mu.Unlock()
			report.Indexed += indexed
			report.Skipped += skipped
			report.Namespaces[g.namespace] = indexed
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if ix.pool == nil || ix.pool.Submit(task) != nil {
			go task()
		}
	}
	wg.Wait()

	report.Duration = time.Since(start)
	if firstErr != nil {
		return report, errors.ErrHandbookIndexFailed.WithCause(firstErr)
	}
	logger.Infow("indexing finished",
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"namespaces", len(report.Namespaces),
		"duration", report.Duration.String(),
	)
	return report, nil
}

func (ix *Indexer) indexNamespace(ctx context.Context, namespace string, records []recordstore.Record) (indexed, skipped int, err error) {
	var (
		texts   []string
		vectors []vectorindex.Vector
	)

	flush := func() error {
		if len(texts) == 0 {
			return nil
		}
		embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch for %s: %w", namespace, err)
		}
		if len(embeddings) != len(vectors) {
			return fmt.Errorf("embed batch for %s: got %d embeddings for %d texts", namespace, len(embeddings), len(vectors))
		}
		for i := range vectors {
			vectors[i].Values = embeddings[i]
		}
		if err := ix.index.Upsert(ctx, namespace, vectors); err != nil {
			return fmt.Errorf("upsert %s: %w", namespace, err)
		}
		logger.Infow("upserted batch", "namespace", namespace, "vectors", len(vectors))
		indexed += len(vectors)
		if ix.config.Recorder != nil {
			ix.config.Recorder.RecordIndexing(len(vectors), 0, nil)
		}
		texts, vectors = nil, nil
		return nil
	}

	for _, rec := range records {
		text := BuildEmbeddingText(rec)
		if runeLen(text) < MinEmbeddingRunes {
			skipped++
			continue
		}
		texts = append(texts, text)
		vectors = append(vectors, vectorindex.Vector{ID: rec.ID, Metadata: VectorMetadata(rec, text)})

		if len(texts) >= ix.config.BatchSize {
			if err := flush(); err != nil {
				ix.recordFailure(err)
				return indexed, skipped, err
			}
		}
	}
	if err := flush(); err != nil {
		ix.recordFailure(err)
		return indexed, skipped, err
	}
	if ix.config.Recorder != nil && skipped > 0 {
		ix.config.Recorder.RecordIndexing(0, skipped, nil)
	}
	return indexed, skipped, nil
}

func (ix *Indexer) recordFailure(err error) {
	logger.Errorw("indexing failed", "error", err.Error())
	if ix.config.Recorder != nil {
		ix.config.Recorder.RecordIndexing(0, 0, err)
	}
}

func groupByNamespace(records []recordstore.Record) []namespaceBatch {
	pos := make(map[string]int)
	var groups []namespaceBatch
	for _, r := range records {
		i, ok := pos[r.Namespace]
		if !ok {
			i = len(groups)
			pos[r.Namespace] = i
			groups = append(groups, namespaceBatch{namespace: r.Namespace})
		}
		groups[i].records = append(groups[i].records, r)
	}
	return groups
}

// BuildEmbeddingText appends the category, section and link labels of a
// record to its text, one per line.
func BuildEmbeddingText(rec recordstore.Record) string {
	parts := []string{strings.TrimSpace(rec.Text)}
	if rec.Metadata.Category != "" {
		parts = append(parts, "Kategorie: "+rec.Metadata.Category)
	}
	if rec.Metadata.Section != "" {
		parts = append(parts, "Abschnitt: "+rec.Metadata.Section)
	}
	if labels := linkLabels(rec.Metadata.Links); labels != "" {
		parts = append(parts, "Studiengänge / Programme: "+labels)
	}
	return strings.Join(parts, "\n")
}

func linkLabels(links []recordstore.Link) string {
	var out []string
	for _, l := range links {
		switch {
		case l.Text != "" && l.URL != "":
			out = append(out, fmt.Sprintf("%s (%s)", l.Text, l.URL))
		case l.Text != "":
			out = append(out, l.Text)
		}
	}
	return strings.Join(out, ", ")
}

// SanitizeMetadata converts raw metadata into values every index backend can
// store: nil becomes "no data", scalars and string lists are kept, lists of
// link objects become "label (url), ..." and anything else its string form.
func SanitizeMetadata(raw map[string]any) map[string]any {
	clean := make(map[string]any, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			clean[k] = noData
		case string, bool, float64, float32, int, int64:
			clean[k] = val
		case []string:
			clean[k] = val
		case []any:
			clean[k] = sanitizeList(val)
		default:
			clean[k] = fmt.Sprint(val)
		}
	}
	return clean
}

func sanitizeList(list []any) any {
	allStrings, allObjects := true, true
	for _, item := range list {
		if _, ok := item.(string); !ok {
			allStrings = false
		}
		if _, ok := item.(map[string]any); !ok {
			allObjects = false
		}
	}
	switch {
	case len(list) == 0:
		return []string{}
	case allStrings:
		out := make([]string, len(list))
		for i, item := range list {
			out[i] = item.(string)
		}
		return out
	case allObjects:
		links := make([]recordstore.Link, 0, len(list))
		for _, item := range list {
			obj := item.(map[string]any)
			label, _ := obj["text"].(string)
			url, _ := obj["url"].(string)
			links = append(links, recordstore.Link{Text: label, URL: url})
		}
		return linkLabels(links)
	default:
		return fmt.Sprint(list)
	}
}

// VectorMetadata 构建写入索引的元数据：清洗后的原始元数据、文本片段，
// 以及检索过滤使用的规范化字段。
func VectorMetadata(rec recordstore.Record, embeddingText string) map[string]any {
	meta := SanitizeMetadata(rec.Raw)
	meta[vectorindex.FieldSnippet] = truncateRunes(embeddingText, SnippetRunes)
	meta[vectorindex.FieldSeason] = rec.Metadata.Season
	meta[vectorindex.FieldExamType] = rec.Metadata.ExamType
	meta[vectorindex.FieldCreditPointsNum] = rec.Metadata.CreditPointsNum
	if _, ok := meta["studyProgramAbbrev"]; !ok && rec.Metadata.StudyProgramAbbrev != "" {
		meta["studyProgramAbbrev"] = rec.Metadata.StudyProgramAbbrev
	}
	return meta
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
