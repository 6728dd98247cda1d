// Package chatlog persists answered questions for later review.
package chatlog

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/handbook-rag/internal/handbook/assembler"
	"github.com/kart-io/handbook-rag/pkg/id"
	"github.com/kart-io/handbook-rag/pkg/options/handbook"
)

// Entry is one logged question and answer.
type Entry struct {
	ID        string             `json:"id"`
	Timestamp string             `json:"timestamp"`
	Question  string             `json:"question"`
	Answer    string             `json:"answer"`
	Lang      string             `json:"lang"`
	Sources   []assembler.Source `json:"sources"`
}

// NewEntry stamps a new entry with a ULID and the current UTC time.
func NewEntry(question, answer, lang string, sources []assembler.Source) *Entry {
	if sources == nil {
		sources = []assembler.Source{}
	}
	return &Entry{
		ID:        id.NewULID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Question:  question,
		Answer:    answer,
		Lang:      lang,
		Sources:   sources,
	}
}

// Logger appends chat log entries. Implementations are safe for concurrent use.
type Logger interface {
	Append(ctx context.Context, entry *Entry) error
	Close() error
}

// New creates the logger selected by opts.Backend.
func New(opts *handbook.ChatLogOptions) (Logger, error) {
	switch opts.Backend {
	case handbook.ChatLogBackendJSONL:
		return NewJSONL(opts.Path, opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays), nil
	case handbook.ChatLogBackendSQLite:
		return OpenSQLite(opts.DSN)
	case handbook.ChatLogBackendNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown chat log backend %q", opts.Backend)
	}
}

// Nop discards every entry.
type Nop struct{}

// Append implements Logger.
func (Nop) Append(context.Context, *Entry) error { return nil }

// Close implements Logger.
func (Nop) Close() error { return nil }
