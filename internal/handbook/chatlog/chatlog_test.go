package chatlog

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/handbook-rag/internal/handbook/assembler"
	"github.com/kart-io/handbook-rag/internal/handbook/recordstore"
	"github.com/kart-io/handbook-rag/pkg/id"
	"github.com/kart-io/handbook-rag/pkg/options/handbook"
	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

func sampleSources() []assembler.Source {
	return []assembler.Source{{
		ID:                 "BMI-001",
		Origin:             assembler.OriginHandbook,
		Namespace:          "BMI",
		ModuleNumber:       "BMI-001",
		ModuleNameDe:       "Mathematik 1",
		StudyProgramAbbrev: "BMI",
		Score:              0.81,
		Links:              []recordstore.Link{},
	}}
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("Wie viele ECTS?", "5 ECTS", "de", nil)

	_, err := id.Time(e.ID)
	require.NoError(t, err)
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
	assert.NotNil(t, e.Sources)
}

func TestJSONLAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat_log.jsonl")
	l := NewJSONL(path, 1, 1, 1)

	ctx := context.Background()
	require.NoError(t, l.Append(ctx, NewEntry("Was ist Prüfung?", "Klausur", "de", sampleSources())))
	require.NoError(t, l.Append(ctx, NewEntry("What is BMI?", "A program", "en", nil)))
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, sc.Err())
	require.Len(t, entries, 2)
	assert.Equal(t, "Was ist Prüfung?", entries[0].Question)
	assert.Equal(t, "BMI-001", entries[0].Sources[0].ID)
	assert.Equal(t, "en", entries[1].Lang)
	assert.Empty(t, entries[1].Sources)
}

func TestJSONLConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.jsonl")
	l := NewJSONL(path, 10, 1, 1)
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(context.Background(), NewEntry("q", "a", "en", sampleSources())))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, line := range splitLines(data) {
		assert.True(t, json.Valid(line), "line %d is not valid JSON", lines)
		lines++
	}
	assert.Equal(t, 20, lines)
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, data[start:i])
			start = i + 1
		}
	}
	return out
}

func TestSQLiteAppendAndRecent(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	first := NewEntry("Wie viele ECTS?", "5", "de", sampleSources())
	require.NoError(t, s.Append(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := NewEntry("Which semester?", "Winter", "en", nil)
	require.NoError(t, s.Append(ctx, second))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, sampleSources(), got[1].Sources)
	assert.Equal(t, "de", got[1].Lang)

	var count int64
	require.NoError(t, s.db.Table("chat_log_entries").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteDuplicateIDFails(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	e := NewEntry("q", "a", "en", nil)
	require.NoError(t, s.Append(context.Background(), e))
	assert.Error(t, s.Append(context.Background(), e))
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		opts    *handbook.ChatLogOptions
		want    any
		wantErr bool
	}{
		{"jsonl", &handbook.ChatLogOptions{Backend: handbook.ChatLogBackendJSONL, Path: filepath.Join(dir, "c.jsonl")}, &JSONL{}, false},
		{"sqlite", &handbook.ChatLogOptions{Backend: handbook.ChatLogBackendSQLite, DSN: filepath.Join(dir, "db", "c.db")}, &SQLite{}, false},
		{"none", &handbook.ChatLogOptions{Backend: handbook.ChatLogBackendNone}, Nop{}, false},
		{"unknown", &handbook.ChatLogOptions{Backend: "kafka"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer l.Close()
			assert.IsType(t, tt.want, l)
			assert.NoError(t, l.Append(context.Background(), NewEntry("q", "a", "en", nil)))
		})
	}
}
