package chatlog

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

// JSONL writes one JSON object per line to a size-rotated file.
type JSONL struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// NewJSONL creates a JSONL logger writing to path. The file and its directory
// are created on the first append.
func NewJSONL(path string, maxSizeMB, maxBackups, maxAgeDays int) *JSONL {
	return &JSONL{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		},
	}
}

// Append implements Logger.
func (l *JSONL) Append(_ context.Context, entry *Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode chat log entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(line); err != nil {
		return fmt.Errorf("write chat log: %w", err)
	}
	return nil
}

// Close implements Logger.
func (l *JSONL) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
