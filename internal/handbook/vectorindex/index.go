// Package vectorindex defines the namespace-partitioned vector index boundary
// and its Milvus and in-memory backends.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Filter operators.
const (
	OpEq  = "$eq"
	OpGte = "$gte"
	OpLte = "$lte"
)

// Filterable metadata fields.
const (
	FieldSeason          = "season"
	FieldExamType        = "examType"
	FieldCreditPointsNum = "creditPointsNum"
	FieldSnippet         = "snippet"
)

// Filter constrains a query: field → operator → value. An empty filter means
// no constraint.
type Filter map[string]map[string]any

// Empty reports whether the filter has no conditions.
func (f Filter) Empty() bool {
	for _, conds := range f {
		if len(conds) > 0 {
			return false
		}
	}
	return true
}

// Fields returns the constrained fields in sorted order.
func (f Filter) Fields() []string {
	fields := make([]string, 0, len(f))
	for k, conds := range f {
		if len(conds) > 0 {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

// Validate rejects unknown operators and values of the wrong kind.
func (f Filter) Validate() error {
	for _, field := range f.Fields() {
		for op, v := range f[field] {
			switch op {
			case OpEq:
				if _, ok := v.(string); !ok {
					if _, ok := toFloat(v); !ok {
						return fmt.Errorf("filter %s %s: unsupported value %T", field, op, v)
					}
				}
			case OpGte, OpLte:
				if _, ok := toFloat(v); !ok {
					return fmt.Errorf("filter %s %s: value must be numeric, got %T", field, op, v)
				}
			default:
				return fmt.Errorf("filter %s: unknown operator %q", field, op)
			}
		}
	}
	return nil
}

// String renders the filter deterministically for logs and cache keys.
func (f Filter) String() string {
	if f.Empty() {
		return ""
	}
	var sb strings.Builder
	for i, field := range f.Fields() {
		if i > 0 {
			sb.WriteByte(';')
		}
		ops := make([]string, 0, len(f[field]))
		for op := range f[field] {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for j, op := range ops {
			if j > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%s%s%v", field, op, f[field][op])
		}
	}
	return sb.String()
}

// Match is one similarity search hit. Higher scores are better.
type Match struct {
	ID        string
	Score     float64
	Namespace string
	Metadata  map[string]any
}

// Snippet returns the fallback text carried in the match metadata.
func (m Match) Snippet() string {
	s, _ := m.Metadata[FieldSnippet].(string)
	return s
}

// Vector is one record to upsert.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Index is a vector index partitioned by namespace.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int, namespace string, filter Filter) ([]Match, error)
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
