package biz

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kart-io/handbook-rag/internal/handbook/recordstore"
	"github.com/kart-io/handbook-rag/pkg/llm"
)

// keywordEmbedder maps text onto a fixed two-dimensional space: mathematics
// related text points one way, everything else the other.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	batch []int
	fail  bool
}

func (e *keywordEmbedder) vector(text string) []float32 {
	t := strings.ToLower(text)
	if strings.Contains(t, "mathe") || strings.Contains(t, "ects") {
		return []float32{1, 0.1}
	}
	return []float32{0.1, 1}
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.batch = append(e.batch, len(texts))
	e.mu.Unlock()
	if e.fail {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *keywordEmbedder) Name() string { return "keyword" }

type scriptedChat struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	messages []llm.Message
}

func (c *scriptedChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.messages = messages
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *scriptedChat) Name() string { return "scripted" }

type staticRecords struct {
	namespaces []string
	texts      map[string]string
	meta       map[string]recordstore.Metadata
	records    []recordstore.Record
}

func (s *staticRecords) Namespaces() []string { return s.namespaces }

func (s *staticRecords) Text(id string) (string, bool) {
	t, ok := s.texts[id]
	return t, ok
}

func (s *staticRecords) Metadata(id string) (recordstore.Metadata, bool) {
	m, ok := s.meta[id]
	return m, ok
}

func (s *staticRecords) Records() ([]recordstore.Record, error) { return s.records, nil }

func newStaticRecords(records ...recordstore.Record) *staticRecords {
	s := &staticRecords{texts: map[string]string{}, meta: map[string]recordstore.Metadata{}, records: records}
	seen := map[string]bool{}
	for _, r := range records {
		s.texts[r.ID] = r.Text
		s.meta[r.ID] = r.Metadata
		if !seen[r.Namespace] {
			seen[r.Namespace] = true
			s.namespaces = append(s.namespaces, r.Namespace)
		}
	}
	return s
}

func handbookRecord(id, ns, module, name, text string) recordstore.Record {
	raw := map[string]any{
		"studyProgramAbbrev": ns,
		"moduleNumber":       module,
		"moduleNameDe":       name,
		"offeredInSeason":    "WiSe",
		"creditPoints":       "5",
	}
	return recordstore.Record{
		ID:        id,
		Text:      text,
		Namespace: ns,
		Metadata:  recordstore.NormalizeHandbook(raw, ns),
		Raw:       raw,
	}
}
