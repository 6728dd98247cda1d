package vectorindex

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/handbook-rag/pkg/component/milvus"
)

func TestFilter(t *testing.T) {
	var empty Filter
	assert.True(t, empty.Empty())
	assert.Equal(t, "", empty.String())
	assert.NoError(t, empty.Validate())

	f := Filter{
		FieldSeason:          {OpEq: "WiSe"},
		FieldCreditPointsNum: {OpGte: 5.0, OpLte: 10.0},
	}
	assert.False(t, f.Empty())
	assert.Equal(t, []string{FieldCreditPointsNum, FieldSeason}, f.Fields())
	assert.Equal(t, "creditPointsNum$gte5,creditPointsNum$lte10;season$eqWiSe", f.String())
	assert.NoError(t, f.Validate())

	assert.Error(t, Filter{FieldSeason: {"$in": "x"}}.Validate())
	assert.Error(t, Filter{FieldCreditPointsNum: {OpGte: "five"}}.Validate())
}

func TestMemoryQuery(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "BMI", []Vector{
		{ID: "a", Values: []float32{1, 0}, Metadata: map[string]any{"season": "WiSe", "creditPointsNum": 5.0, "snippet": "A"}},
		{ID: "b", Values: []float32{0.7, 0.7}, Metadata: map[string]any{"season": "SoSe", "creditPointsNum": 10.0}},
		{ID: "c", Values: []float32{0, 1}, Metadata: map[string]any{"season": "WiSe", "creditPointsNum": 2.5}},
	}))
	require.NoError(t, idx.Upsert(ctx, "MMI", []Vector{{ID: "x", Values: []float32{1, 0}}}))

	matches, err := idx.Query(ctx, []float32{1, 0}, 10, "BMI", nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "BMI", matches[0].Namespace)
	assert.Equal(t, "A", matches[0].Snippet())

	matches, err = idx.Query(ctx, []float32{1, 0}, 1, "BMI", nil)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = idx.Query(ctx, []float32{1, 0}, 10, "BMI", Filter{
		FieldSeason:          {OpEq: "WiSe"},
		FieldCreditPointsNum: {OpGte: 3.0},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)

	matches, err = idx.Query(ctx, []float32{1, 0}, 10, "BMI", Filter{FieldExamType: {OpEq: "Klausur"}})
	require.NoError(t, err)
	assert.Empty(t, matches, "records without the field do not pass the filter")

	matches, err = idx.Query(ctx, []float32{1, 0}, 10, "UNKNOWN", nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryUpsertReplaces(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "BMI", []Vector{{ID: "a", Values: []float32{1, 0}}}))
	require.NoError(t, idx.Upsert(ctx, "BMI", []Vector{{ID: "a", Values: []float32{0, 1}}}))
	assert.Equal(t, 1, idx.Len("BMI"))

	matches, err := idx.Query(ctx, []float32{0, 1}, 1, "BMI", nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)

	assert.Error(t, idx.Upsert(ctx, "BMI", []Vector{{Values: []float32{1}}}))
}

func TestExpr(t *testing.T) {
	expr, err := Expr("BMI", nil)
	require.NoError(t, err)
	assert.Equal(t, `namespace == "BMI"`, expr)

	expr, err = Expr("BMI_WEB", Filter{
		FieldSeason:          {OpEq: `Wi"Se`},
		FieldCreditPointsNum: {OpGte: 5.0, OpLte: 7.5},
		FieldExamType:        {OpEq: "Klausur"},
	})
	require.NoError(t, err)
	assert.Equal(t, `namespace == "BMI_WEB" && creditPointsNum >= 5 && creditPointsNum <= 7.5 && examType == "Klausur" && season == "Wi\"Se"`, expr)

	_, err = Expr("BMI", Filter{FieldSeason: {"$ne": "x"}})
	assert.Error(t, err)
}

type fakeMilvus struct {
	upserted []column.Column
	expr     string
	results  []milvus.Hit
}

func (f *fakeMilvus) EnsureCollection(context.Context, *milvus.CollectionSchema) error { return nil }

func (f *fakeMilvus) Upsert(_ context.Context, _ string, columns ...column.Column) error {
	f.upserted = columns
	return nil
}

func (f *fakeMilvus) Count(context.Context, string) (int64, error) { return int64(len(f.results)), nil }

func (f *fakeMilvus) Search(_ context.Context, _ string, _ []float32, _ int, expr string, _ []string) ([]milvus.Hit, error) {
	f.expr = expr
	return f.results, nil
}

func TestMilvusIndexUpsertColumns(t *testing.T) {
	fake := &fakeMilvus{}
	idx := NewMilvusIndex(fake, MilvusConfig{Collection: "handbook_chunks", Dimension: 2})

	err := idx.Upsert(context.Background(), "BMI", []Vector{
		{ID: "a", Values: []float32{1, 0}, Metadata: map[string]any{"season": "WiSe", "creditPointsNum": 5.0, "snippet": "Text"}},
	})
	require.NoError(t, err)
	require.Len(t, fake.upserted, 8)
	assert.Equal(t, milvus.FieldID, fake.upserted[0].Name())
	assert.Equal(t, 1, fake.upserted[0].Len())

	err = idx.Upsert(context.Background(), "BMI", []Vector{{ID: "bad", Values: []float32{1}}})
	assert.Error(t, err)
}

func TestMilvusIndexQuery(t *testing.T) {
	fake := &fakeMilvus{results: []milvus.Hit{
		{ID: "a", Score: 0.8, Fields: map[string]any{
			"namespace": "BMI",
			"snippet":   "Snippet",
			"metadata":  `{"moduleNumber":"M1","season":"WiSe"}`,
		}},
	}}
	idx := NewMilvusIndex(fake, MilvusConfig{Collection: "handbook_chunks", Dimension: 2})

	matches, err := idx.Query(context.Background(), []float32{1, 0}, 5, "BMI", Filter{FieldSeason: {OpEq: "WiSe"}})
	require.NoError(t, err)
	assert.Equal(t, `namespace == "BMI" && season == "WiSe"`, fake.expr)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.8, matches[0].Score, 1e-6)
	assert.Equal(t, "M1", matches[0].Metadata["moduleNumber"])
	assert.Equal(t, "Snippet", matches[0].Snippet())

	matches, err = idx.Query(context.Background(), nil, 5, "BMI", nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMilvusIndexSchemaCarriesRecreate(t *testing.T) {
	idx := NewMilvusIndex(&fakeMilvus{}, MilvusConfig{Collection: "c", Dimension: 4, Recreate: true})
	schema := idx.Schema()
	assert.True(t, schema.Recreate)
	assert.Equal(t, 4, schema.Dimension)
	assert.Len(t, schema.MetaFields, 6)
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abc", 10))
	assert.Equal(t, "Prü", truncateBytes("Prüfung", 4))
}
