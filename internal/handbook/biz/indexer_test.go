package biz

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/handbook-rag/internal/handbook/metrics"
	"github.com/kart-io/handbook-rag/internal/handbook/recordstore"
	"github.com/kart-io/handbook-rag/internal/handbook/vectorindex"
	"github.com/kart-io/handbook-rag/pkg/infra/pool"
	utilerrors "github.com/kart-io/handbook-rag/pkg/utils/errors"
)

func TestBuildEmbeddingText(t *testing.T) {
	rec := recordstore.Record{
		Text: "  Bewerbung für Bachelorstudiengänge  ",
		Metadata: recordstore.Metadata{
			Category: "Studium",
			Section:  "Bewerbung",
			Links: []recordstore.Link{
				{Text: "BMI", URL: "https://example.org/bmi"},
				{Text: "MMI"},
				{URL: "https://example.org/ignored"},
			},
		},
	}
	assert.Equal(t,
		"Bewerbung für Bachelorstudiengänge\nKategorie: Studium\nAbschnitt: Bewerbung\nStudiengänge / Programme: BMI (https://example.org/bmi), MMI",
		BuildEmbeddingText(rec))

	assert.Equal(t, "nur Text", BuildEmbeddingText(recordstore.Record{Text: "nur Text"}))
}

func TestSanitizeMetadata(t *testing.T) {
	raw := map[string]any{
		"missing":  nil,
		"name":     "Mathe",
		"credits":  5.0,
		"required": true,
		"tags":     []any{"a", "b"},
		"links": []any{
			map[string]any{"text": "Info", "url": "https://example.org"},
			map[string]any{"text": "Nur Text"},
		},
		"mixed":  []any{"a", 1.0},
		"nested": map[string]any{"k": "v"},
		"empty":  []any{},
	}
	clean := SanitizeMetadata(raw)

	assert.Equal(t, "no data", clean["missing"])
	assert.Equal(t, "Mathe", clean["name"])
	assert.Equal(t, 5.0, clean["credits"])
	assert.Equal(t, true, clean["required"])
	assert.Equal(t, []string{"a", "b"}, clean["tags"])
	assert.Equal(t, "Info (https://example.org), Nur Text", clean["links"])
	assert.Equal(t, "[a 1]", clean["mixed"])
	assert.Equal(t, "map[k:v]", clean["nested"])
	assert.Equal(t, []string{}, clean["empty"])
}

func TestVectorMetadataAddsFilterFields(t *testing.T) {
	rec := handbookRecord("BMI-001", "BMI", "BMI-001", "Mathematik 1", "Grundlagen der Mathematik")
	text := strings.Repeat("x", 400)

	meta := VectorMetadata(rec, text)
	assert.Equal(t, "WiSe", meta[vectorindex.FieldSeason])
	assert.Equal(t, 5.0, meta[vectorindex.FieldCreditPointsNum])
	assert.Equal(t, "", meta[vectorindex.FieldExamType])
	assert.Equal(t, "WiSe", meta["offeredInSeason"])
	assert.Len(t, []rune(meta[vectorindex.FieldSnippet].(string)), SnippetRunes)
}

func TestIndexAll(t *testing.T) {
	var records []recordstore.Record
	for i := 0; i < 5; i++ {
		records = append(records, handbookRecord(fmt.Sprintf("BMI-%d", i), "BMI", fmt.Sprintf("M%d", i), "Mathe", "Mathematik Grundlagen Teil "+fmt.Sprint(i)))
	}
	records = append(records,
		handbookRecord("MMI-1", "MMI", "X1", "Medien", "Mediengestaltung und Design"),
		handbookRecord("MMI-short", "MMI", "X2", "Kurz", "zu kurz"),
	)

	idx := vectorindex.NewMemory()
	emb := &keywordEmbedder{}
	m := metrics.New()
	p, err := pool.NewPool(pool.IndexPool, pool.IndexPoolConfig(2))
	require.NoError(t, err)
	defer p.Release()

	ix := NewIndexer(newStaticRecords(records...), idx, NewQueryEmbedder(emb, 0), p, IndexerConfig{BatchSize: 2, Recorder: m})
	report, err := ix.IndexAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, map[string]int{"BMI": 5, "MMI": 1}, report.Namespaces)
	assert.Equal(t, 5, idx.Len("BMI"))
	assert.Equal(t, 1, idx.Len("MMI"))
	assert.ElementsMatch(t, []int{2, 2, 1, 1}, emb.batch)

	matches, err := idx.Query(context.Background(), []float32{1, 0.1}, 1, "BMI", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "WiSe", matches[0].Metadata[vectorindex.FieldSeason])
	assert.NotEmpty(t, matches[0].Snippet())

	stats := m.Stats()["indexing"].(map[string]any)
	assert.Equal(t, uint64(6), stats["records_indexed"])
	assert.Equal(t, uint64(1), stats["records_skipped"])
}

func TestIndexAllEmbeddingFailure(t *testing.T) {
	records := []recordstore.Record{handbookRecord("BMI-1", "BMI", "M1", "Mathe", "Mathematik Grundlagen")}
	ix := NewIndexer(newStaticRecords(records...), vectorindex.NewMemory(), NewQueryEmbedder(&keywordEmbedder{fail: true}, 0), nil, IndexerConfig{})

	report, err := ix.IndexAll(context.Background())
	require.Error(t, err)
	assert.True(t, utilerrors.IsCode(err, utilerrors.ErrHandbookIndexFailed.Code))
	assert.Equal(t, 0, report.Indexed)
}
