package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Index using cosine similarity. It serves tests and
// small single-node deployments.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Vector
	order      map[string][]string
}

var _ Index = (*Memory)(nil)

// NewMemory returns an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{
		namespaces: make(map[string]map[string]Vector),
		order:      make(map[string][]string),
	}
}

// Upsert implements Index.
func (m *Memory) Upsert(_ context.Context, namespace string, vectors []Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Vector)
		m.namespaces[namespace] = ns
	}
	for _, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("upsert %s: empty vector id", namespace)
		}
		if _, exists := ns[v.ID]; !exists {
			m.order[namespace] = append(m.order[namespace], v.ID)
		}
		ns[v.ID] = Vector{ID: v.ID, Values: append([]float32(nil), v.Values...), Metadata: copyMeta(v.Metadata)}
	}
	return nil
}

// Query implements Index.
func (m *Memory) Query(ctx context.Context, vector []float32, topK int, namespace string, filter Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ns := m.namespaces[namespace]
	matches := make([]Match, 0, len(ns))
	for _, id := range m.order[namespace] {
		v := ns[id]
		if !matchesFilter(v.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:        v.ID,
			Score:     cosine(vector, v.Values),
			Namespace: namespace,
			Metadata:  copyMeta(v.Metadata),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of vectors stored in namespace.
func (m *Memory) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

func matchesFilter(meta map[string]any, filter Filter) bool {
	for field, conds := range filter {
		got, present := meta[field]
		for op, want := range conds {
			if !present {
				return false
			}
			switch op {
			case OpEq:
				if ws, ok := want.(string); ok {
					if gs, ok := got.(string); !ok || gs != ws {
						return false
					}
					continue
				}
				wf, _ := toFloat(want)
				gf, ok := toFloat(got)
				if !ok || gf != wf {
					return false
				}
			case OpGte, OpLte:
				wf, _ := toFloat(want)
				gf, ok := toFloat(got)
				if !ok {
					return false
				}
				if op == OpGte && gf < wf {
					return false
				}
				if op == OpLte && gf > wf {
					return false
				}
			}
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func copyMeta(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
