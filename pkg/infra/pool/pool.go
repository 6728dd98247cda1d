// Package pool wraps ants goroutine pools for the search fan-out and the
// indexer.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("pool closed")
	// ErrPoolOverload 非阻塞池已满
	ErrPoolOverload = errors.New("pool overloaded")
)

// Type names a pool.
type Type string

const (
	// SearchPool 命名空间并发检索池
	SearchPool Type = "search"
	// IndexPool 索引时并发写入池
	IndexPool Type = "index"
)

// Config 池配置。
type Config struct {
	// Capacity 最大并发 goroutine 数
	Capacity int
	// ExpiryDuration 空闲 worker 的回收时间
	ExpiryDuration time.Duration
	// Nonblocking 池满时 Submit 立即返回 ErrPoolOverload
	Nonblocking bool
	// PanicHandler 任务 panic 时调用，为空时记录日志
	PanicHandler func(any)
}

// SearchPoolConfig 检索池不阻塞请求，池满时由调用方自行起 goroutine。
func SearchPoolConfig(workers int) *Config {
	return &Config{Capacity: workers, ExpiryDuration: 30 * time.Second, Nonblocking: true}
}

// IndexPoolConfig 索引池阻塞提交，以容量限制 embedding 并发。
func IndexPoolConfig(workers int) *Config {
	return &Config{Capacity: workers, ExpiryDuration: 10 * time.Second}
}

// Stats 池统计快照。
type Stats struct {
	Submitted int64
	Completed int64
	Rejected  int64
	Panics    int64
}

// Pool is a named ants pool with counters.
type Pool struct {
	typ  Type
	ants *ants.Pool

	submitted, completed, rejected, panics atomic.Int64

	releaseOnce sync.Once
	closed      atomic.Bool
}

// NewPool creates a pool of the given type.
func NewPool(typ Type, config *Config) (*Pool, error) {
	if config == nil || config.Capacity <= 0 {
		return nil, fmt.Errorf("pool %s: capacity must be positive", typ)
	}

	p := &Pool{typ: typ}
	handler := config.PanicHandler
	if handler == nil {
		handler = func(r any) { logger.Errorw("worker panic recovered", "pool", string(typ), "panic", r) }
	}

	a, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(r any) {
			p.panics.Add(1)
			handler(r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", typ, err)
	}
	p.ants = a

	logger.Infow("Worker pool created", "name", string(typ), "capacity", config.Capacity)
	return p, nil
}

// Name returns the pool type.
func (p *Pool) Name() string { return string(p.typ) }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.ants.Cap() }

// Submit runs task on a pool worker.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	err := p.ants.Submit(func() {
		task()
		p.completed.Add(1)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		err = ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		err = ErrPoolClosed
	}
	p.rejected.Add(1)
	return err
}

// Release stops the workers. Further submissions fail with ErrPoolClosed.
func (p *Pool) Release() {
	p.releaseOnce.Do(func() {
		p.closed.Store(true)
		p.ants.Release()
		logger.Infow("Worker pool released", "name", string(p.typ))
	})
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}
