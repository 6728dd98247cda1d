package chatlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/handbook-rag/internal/handbook/assembler"
	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

// Record 对话日志表结构。
type Record struct {
	ID        string    `gorm:"primaryKey;size:26;comment:ULID"`
	Timestamp time.Time `gorm:"index;comment:UTC 时间"`
	Question  string    `gorm:"type:text"`
	Answer    string    `gorm:"type:text"`
	Lang      string    `gorm:"size:8"`
	Sources   string    `gorm:"type:text;comment:JSON 编码的来源列表"`
}

// TableName returns the table name for GORM.
func (Record) TableName() string {
	return "chat_log_entries"
}

// SQLite stores entries in a SQLite database through gorm.
type SQLite struct {
	mu sync.Mutex
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the database at dsn. ":memory:" is accepted.
func OpenSQLite(dsn string) (*SQLite, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create chat log directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open chat log database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 内存库每个连接各自独立，写入串行化后单连接即可
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate chat log table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Append implements Logger.
func (s *SQLite) Append(ctx context.Context, entry *Entry) error {
	sources, err := json.MarshalString(entry.Sources)
	if err != nil {
		return fmt.Errorf("encode chat log sources: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	rec := &Record{
		ID:        entry.ID,
		Timestamp: ts,
		Question:  entry.Question,
		Answer:    entry.Answer,
		Lang:      entry.Lang,
		Sources:   sources,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Create(rec).Error
}

// Recent returns up to limit entries, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	var recs []Record
	if err := s.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(recs))
	for _, r := range recs {
		var sources []assembler.Source
		if err := json.Unmarshal([]byte(r.Sources), &sources); err != nil {
			return nil, fmt.Errorf("decode sources of %s: %w", r.ID, err)
		}
		out = append(out, &Entry{
			ID:        r.ID,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Question:  r.Question,
			Answer:    r.Answer,
			Lang:      r.Lang,
			Sources:   sources,
		})
	}
	return out, nil
}

// Close implements Logger.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
