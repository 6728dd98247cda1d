// Package recordstore loads handbook and web records from disk and serves them
// by id. A Store is built once by Load and then only read; reloads publish a
// fresh Store through a Holder.
package recordstore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

const (
	handbookExt    = ".jsonl"
	webSuffix      = "_web.json"
	webNamespaceSf = "_WEB"
	maxLineBytes   = 16 << 20
)

// Config locates the record files.
type Config struct {
	// MergedDir is searched recursively for *.jsonl handbook files.
	MergedDir string
	// WebDir is searched (non-recursively) for *_web.json files.
	WebDir string
}

// Record is one retrievable unit of text.
type Record struct {
	ID        string
	Text      string
	Namespace string
	Metadata  Metadata
	// Raw is the record's metadata exactly as read from disk.
	Raw map[string]any
	Web bool
}

// Store maps record ids to text and normalized metadata.
type Store struct {
	cfg Config

	texts      map[string]string
	meta       map[string]Metadata
	namespaces []string
	skipped    int
}

// New returns an empty store reading from cfg.
func New(cfg Config) *Store {
	s := &Store{cfg: cfg}
	s.Reset()
	return s
}

// Reset clears all loaded state.
func (s *Store) Reset() {
	s.texts = make(map[string]string)
	s.meta = make(map[string]Metadata)
	s.namespaces = []string{}
	s.skipped = 0
}

// Load resets the store and reads every record file in a single pass.
func (s *Store) Load() error {
	s.Reset()

	seen := make(map[string]struct{})
	skipped, err := scan(s.cfg, seen, func(r Record) {
		s.texts[r.ID] = r.Text
		s.meta[r.ID] = r.Metadata
	})
	if err != nil {
		return err
	}

	s.namespaces = sortedKeys(seen)
	s.skipped = skipped

	logger.Infow("record store loaded",
		"records", len(s.texts),
		"namespaces", len(s.namespaces),
		"skipped_lines", skipped,
	)
	return nil
}

// Records reads every record file and returns the records in file order
// without touching the store's state.
func (s *Store) Records() ([]Record, error) {
	var out []Record
	if _, err := scan(s.cfg, make(map[string]struct{}), func(r Record) {
		out = append(out, r)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Text returns the stored text for id.
func (s *Store) Text(id string) (string, bool) {
	t, ok := s.texts[id]
	return t, ok
}

// Metadata returns the normalized metadata for id.
func (s *Store) Metadata(id string) (Metadata, bool) {
	m, ok := s.meta[id]
	return m, ok
}

// Namespaces returns the sorted, deduplicated namespaces observed by Load.
func (s *Store) Namespaces() []string {
	out := make([]string, len(s.namespaces))
	copy(out, s.namespaces)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.texts)
}

// Skipped returns the number of malformed JSONL lines seen by the last Load.
func (s *Store) Skipped() int {
	return s.skipped
}

func scan(cfg Config, namespaces map[string]struct{}, visit func(Record)) (int, error) {
	skipped, err := scanHandbook(cfg.MergedDir, namespaces, visit)
	if err != nil {
		return skipped, err
	}
	if err := scanWeb(cfg.WebDir, namespaces, visit); err != nil {
		return skipped, err
	}
	return skipped, nil
}

func scanHandbook(dir string, namespaces map[string]struct{}, visit func(Record)) (int, error) {
	if !dirExists(dir) {
		return 0, nil
	}

	skipped := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != handbookExt {
			return nil
		}

		ns := HandbookNamespace(filepath.Base(path))
		namespaces[ns] = struct{}{}

		n, err := readJSONL(path, ns, visit)
		skipped += n
		if err != nil {
			logger.Warnw("failed to read handbook file", "file", path, "error", err.Error())
		}
		return nil
	})
	if err != nil {
		return skipped, fmt.Errorf("walk %s: %w", dir, err)
	}
	return skipped, nil
}

func readJSONL(path, ns string, visit func(Record)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}

		id, text, raw, ok := splitRecord(rec)
		if !ok {
			continue
		}
		visit(Record{
			ID:        id,
			Text:      text,
			Namespace: ns,
			Metadata:  NormalizeHandbook(raw, ns),
			Raw:       raw,
		})
	}
	return skipped, sc.Err()
}

func scanWeb(dir string, namespaces map[string]struct{}, visit func(Record)) error {
	if !dirExists(dir) {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), webSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := readWebFile(path, namespaces, visit); err != nil {
			logger.Warnw("failed to load web file", "file", path, "error", err.Error())
		}
	}
	return nil
}

func readWebFile(path string, namespaces map[string]struct{}, visit func(Record)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	var items []map[string]any
	switch v := doc.(type) {
	case []any:
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				items = append(items, m)
			}
		}
	case map[string]any:
		items = []map[string]any{v}
	default:
		return fmt.Errorf("unexpected top-level JSON type %T", doc)
	}
	if len(items) == 0 {
		return nil
	}

	program := str(rawMetadata(items[0]), "studyProgramAbbrev")
	ns := WebNamespace(program)
	namespaces[ns] = struct{}{}

	for _, item := range items {
		id, text, raw, ok := splitRecord(item)
		if !ok {
			continue
		}
		visit(Record{
			ID:        id,
			Text:      text,
			Namespace: ns,
			Metadata:  NormalizeWeb(raw, program),
			Raw:       raw,
			Web:       true,
		})
	}
	return nil
}

// HandbookNamespace derives the namespace of a handbook file from its name:
// the stem up to the first underscore.
func HandbookNamespace(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.Index(stem, "_"); i >= 0 {
		return stem[:i]
	}
	return stem
}

// WebNamespace derives the namespace of a web file from its program abbreviation.
func WebNamespace(program string) string {
	if program == "" {
		program = DefaultWebProgram
	}
	return program + webNamespaceSf
}

// splitRecord extracts id, trimmed text and raw metadata. ok is false for
// records that must be skipped.
func splitRecord(rec map[string]any) (id, text string, raw map[string]any, ok bool) {
	id = str(rec, "id")
	if id == "" {
		return "", "", nil, false
	}
	text = strings.TrimSpace(str(rec, "text"))
	if text == "" {
		return "", "", nil, false
	}
	return id, text, rawMetadata(rec), true
}

// rawMetadata returns the nested metadata object, or the flat top-level keys
// other than id and text.
func rawMetadata(rec map[string]any) map[string]any {
	if m, ok := rec["metadata"].(map[string]any); ok {
		return m
	}
	flat := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == "id" || k == "text" || k == "metadata" {
			continue
		}
		flat[k] = v
	}
	return flat
}

func dirExists(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warnw("cannot stat record directory", "dir", dir, "error", err.Error())
		}
		return false
	}
	return info.IsDir()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
