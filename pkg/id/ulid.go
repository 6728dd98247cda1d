// Package id generates time-sortable ULID identifiers for requests and chat log entries.
//
// Format: 01AN4Z07BY79KA1307SR9X4MV3
//   - first 10 characters: millisecond timestamp
//   - last 16 characters: entropy
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator 生成唯一 ID。
type Generator interface {
	Generate() string
}

// ULIDGenerator 使用单调熵源生成 ULID，同一毫秒内的 ID 也保持有序。
type ULIDGenerator struct {
	entropy io.Reader
	mu      sync.Mutex
	now     func() time.Time
}

// NewULIDGenerator 创建新的 ULID 生成器。
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate 实现 Generator 接口。
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var defaultGenerator = NewULIDGenerator()

// NewULID returns a new ULID string from the package generator.
func NewULID() string {
	return defaultGenerator.Generate()
}

// Time returns the timestamp encoded in a ULID string.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
