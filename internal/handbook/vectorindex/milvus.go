package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/handbook-rag/pkg/component/milvus"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

// Milvus collection fields besides id and embedding.
const (
	fieldNamespace = "namespace"
	fieldMetadata  = "metadata"

	maxSnippetBytes  = 2048
	maxMetadataBytes = 65535
)

var outputFields = []string{fieldNamespace, FieldSeason, FieldExamType, FieldCreditPointsNum, FieldSnippet, fieldMetadata}

// MilvusClient is the subset of the Milvus component used by the index.
type MilvusClient interface {
	EnsureCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	Upsert(ctx context.Context, collection string, columns ...column.Column) error
	Search(ctx context.Context, collection string, vector []float32, topK int, filter string, outputFields []string) ([]milvus.Hit, error)
	Count(ctx context.Context, collection string) (int64, error)
}

// MilvusConfig names the collection backing a MilvusIndex.
type MilvusConfig struct {
	Collection string
	Dimension  int
	// Recreate drops the collection in EnsureCollection.
	Recreate bool
}

// MilvusIndex stores all namespaces in one collection and scopes queries with
// a namespace condition.
type MilvusIndex struct {
	client     MilvusClient
	collection string
	dimension  int
	recreate   bool
}

var _ Index = (*MilvusIndex)(nil)

// NewMilvusIndex returns an index over cfg.Collection.
func NewMilvusIndex(client MilvusClient, cfg MilvusConfig) *MilvusIndex {
	return &MilvusIndex{client: client, collection: cfg.Collection, dimension: cfg.Dimension, recreate: cfg.Recreate}
}

// Schema returns the collection schema used by EnsureCollection.
func (m *MilvusIndex) Schema() *milvus.CollectionSchema {
	return &milvus.CollectionSchema{
		Name:        m.collection,
		Description: "module handbook and web chunks",
		Dimension:   m.dimension,
		IDMaxLen:    512,
		Recreate:    m.recreate,
		MetaFields: []milvus.MetaField{
			{Name: fieldNamespace, DataType: entity.FieldTypeVarChar, MaxLen: 128},
			{Name: FieldSeason, DataType: entity.FieldTypeVarChar, MaxLen: 128},
			{Name: FieldExamType, DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: FieldCreditPointsNum, DataType: entity.FieldTypeDouble},
			{Name: FieldSnippet, DataType: entity.FieldTypeVarChar, MaxLen: maxSnippetBytes},
			{Name: fieldMetadata, DataType: entity.FieldTypeVarChar, MaxLen: maxMetadataBytes},
		},
	}
}

// EnsureCollection creates and loads the collection when needed.
func (m *MilvusIndex) EnsureCollection(ctx context.Context) error {
	return m.client.EnsureCollection(ctx, m.Schema())
}

// Count returns the number of stored vectors.
func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	return m.client.Count(ctx, m.collection)
}

// Upsert implements Index.
func (m *MilvusIndex) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	n := len(vectors)
	ids := make([]string, n)
	embeddings := make([][]float32, n)
	namespaces := make([]string, n)
	seasons := make([]string, n)
	examTypes := make([]string, n)
	credits := make([]float64, n)
	snippets := make([]string, n)
	metas := make([]string, n)

	for i, v := range vectors {
		if len(v.Values) != m.dimension {
			return fmt.Errorf("vector %s has dimension %d, collection expects %d", v.ID, len(v.Values), m.dimension)
		}
		ids[i] = v.ID
		embeddings[i] = v.Values
		namespaces[i] = namespace
		seasons[i], _ = v.Metadata[FieldSeason].(string)
		examTypes[i], _ = v.Metadata[FieldExamType].(string)
		credits[i], _ = toFloat(v.Metadata[FieldCreditPointsNum])
		snippets[i] = truncateBytes(stringValue(v.Metadata[FieldSnippet]), maxSnippetBytes)

		raw, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", v.ID, err)
		}
		if len(raw) > maxMetadataBytes {
			return fmt.Errorf("metadata of %s exceeds %d bytes", v.ID, maxMetadataBytes)
		}
		metas[i] = string(raw)
	}

	if err := m.client.Upsert(ctx, m.collection,
		column.NewColumnVarChar(milvus.FieldID, ids),
		column.NewColumnFloatVector(milvus.FieldEmbedding, m.dimension, embeddings),
		column.NewColumnVarChar(fieldNamespace, namespaces),
		column.NewColumnVarChar(FieldSeason, seasons),
		column.NewColumnVarChar(FieldExamType, examTypes),
		column.NewColumnDouble(FieldCreditPointsNum, credits),
		column.NewColumnVarChar(FieldSnippet, snippets),
		column.NewColumnVarChar(fieldMetadata, metas),
	); err != nil {
		return errors.ErrVectorUpsert.WithCause(err)
	}
	return nil
}

// Query implements Index.
func (m *MilvusIndex) Query(ctx context.Context, vector []float32, topK int, namespace string, filter Filter) ([]Match, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}
	expr, err := Expr(namespace, filter)
	if err != nil {
		return nil, err
	}

	results, err := m.client.Search(ctx, m.collection, vector, topK, expr, outputFields)
	if err != nil {
		return nil, errors.ErrVectorQuery.WithCause(err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		meta := map[string]any{}
		if raw, ok := r.Fields[fieldMetadata].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				meta = map[string]any{}
			}
		}
		if s, ok := r.Fields[FieldSnippet].(string); ok && s != "" {
			meta[FieldSnippet] = s
		}
		ns, _ := r.Fields[fieldNamespace].(string)
		if ns == "" {
			ns = namespace
		}
		matches = append(matches, Match{
			ID:        r.ID,
			Score:     float64(r.Score),
			Namespace: ns,
			Metadata:  meta,
		})
	}
	return matches, nil
}

// Expr translates a namespace and filter into a Milvus boolean expression.
func Expr(namespace string, filter Filter) (string, error) {
	if err := filter.Validate(); err != nil {
		return "", err
	}

	parts := []string{fieldNamespace + " == " + quote(namespace)}
	for _, field := range filter.Fields() {
		conds := filter[field]
		for _, op := range []string{OpEq, OpGte, OpLte} {
			v, ok := conds[op]
			if !ok {
				continue
			}
			parts = append(parts, field+" "+milvusOp(op)+" "+literal(v))
		}
	}
	return strings.Join(parts, " && "), nil
}

func milvusOp(op string) string {
	switch op {
	case OpGte:
		return ">="
	case OpLte:
		return "<="
	default:
		return "=="
	}
}

func literal(v any) string {
	if s, ok := v.(string); ok {
		return quote(s)
	}
	f, _ := toFloat(v)
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// truncateBytes cuts s to at most n bytes on a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
