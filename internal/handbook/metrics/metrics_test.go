package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordQuery(t *testing.T) {
	m := New()

	m.RecordQuery(true)
	m.RecordQuery(false)
	m.RecordQuery(false)

	assert.Equal(t, uint64(3), m.queriesTotal)
	assert.Equal(t, uint64(1), m.queriesCacheHits)
	assert.Equal(t, uint64(2), m.queriesCacheMisses)
}

func TestRecordSynthesis(t *testing.T) {
	m := New()

	m.RecordSynthesis(500*time.Millisecond, nil)
	m.RecordSynthesis(250*time.Millisecond, errors.New("timeout"))

	assert.Equal(t, uint64(2), m.synthesisTotal)
	assert.Equal(t, uint64(1), m.synthesisErrors)
	assert.InDelta(t, 0.75, m.synthesisDuration, 0.001)
}

func TestRecordIndexing(t *testing.T) {
	m := New()

	m.RecordIndexing(100, 3, nil)
	m.RecordIndexing(50, 0, nil)
	m.RecordIndexing(0, 0, errors.New("milvus down"))

	assert.Equal(t, uint64(150), m.recordsIndexed)
	assert.Equal(t, uint64(3), m.recordsSkipped)
	assert.Equal(t, uint64(1), m.indexErrors)
}

func TestNamespaceFailuresConcurrent(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordNamespaceFailure("BMI")
			m.RecordQuery(false)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]uint64{"BMI": 50}, m.NamespaceFailures())
	assert.Equal(t, uint64(50), m.queriesTotal)
}

func TestExport(t *testing.T) {
	m := New()
	m.RecordQuery(true)
	m.RecordQuery(false)
	m.RecordNamespaceFailure("MMI")
	m.RecordNamespaceFailure("BMI")
	m.RecordReload(errors.New("bad file"))

	out := m.Export("handbook", "rag")

	assert.Contains(t, out, "# TYPE handbook_rag_queries_total counter\n")
	assert.Contains(t, out, "handbook_rag_queries_total 2\n")
	assert.Contains(t, out, "handbook_rag_cache_hit_rate 0.5000\n")
	assert.Contains(t, out, `handbook_rag_namespace_failures_total{namespace="BMI"} 1`+"\n"+
		`handbook_rag_namespace_failures_total{namespace="MMI"} 1`)
	assert.Contains(t, out, "handbook_rag_record_reload_errors_total 1\n")
	assert.Contains(t, out, "# TYPE handbook_rag_uptime_seconds gauge\n")
}

func TestExportWithoutSubsystem(t *testing.T) {
	out := New().Export("handbook", "")
	assert.Contains(t, out, "handbook_queries_total 0\n")
	assert.Contains(t, out, "handbook_cache_hit_rate 0.0000\n")
}

func TestStats(t *testing.T) {
	m := New()
	m.RecordNoContext()
	m.RecordChatLogError()

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats["chat_log_errors"])
	assert.Equal(t, uint64(1), stats["queries"].(map[string]any)["no_context"])
}
