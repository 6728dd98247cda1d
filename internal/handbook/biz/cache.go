package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kart-io/logger"
	gocache "github.com/patrickmn/go-cache"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/handbook-rag/pkg/utils/errors"
	"github.com/kart-io/handbook-rag/pkg/utils/json"
)

// 查询缓存后端。
const (
	CacheBackendNone   = "none"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// QueryCacheConfig 查询缓存配置。
type QueryCacheConfig struct {
	// Backend 缓存后端（none, redis, memory）。
	Backend string
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// QueryCache 问答结果缓存，支持 Redis 与进程内两种后端。
type QueryCache struct {
	redis  *goredis.Client
	local  *gocache.Cache
	config *QueryCacheConfig
}

// NewQueryCache 创建查询缓存实例。redis 后端在 client 为 nil 时退化为禁用。
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Backend:   CacheBackendNone,
			TTL:       1 * time.Hour,
			KeyPrefix: "handbook:",
		}
	}
	c := &QueryCache{config: config}
	switch config.Backend {
	case CacheBackendRedis:
		c.redis = redis
	case CacheBackendMemory:
		// 过期项每 10 分钟清理一次
		c.local = gocache.New(config.TTL, 10*time.Minute)
	}
	return c
}

// Enabled reports whether a backend is active.
func (c *QueryCache) Enabled() bool {
	return c != nil && (c.redis != nil || c.local != nil)
}

// Key 基于请求中影响结果的字段生成缓存键（SHA256）。
func (c *QueryCache) Key(req *AskRequest) string {
	namespaces := append([]string(nil), req.Namespaces...)
	sort.Strings(namespaces)

	parts := []string{
		strings.ToLower(strings.TrimSpace(req.Question)),
		req.Program,
		req.Season,
		req.ExamType,
		bound(req.MinCredits),
		bound(req.MaxCredits),
		fmt.Sprintf("%d", req.TopK),
		strings.Join(namespaces, ","),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return c.config.KeyPrefix + "ask:" + hex.EncodeToString(hash[:])
}

func bound(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

// Get 从缓存获取问答结果，未命中时返回 nil, nil。
func (c *QueryCache) Get(ctx context.Context, req *AskRequest) (*AskResponse, error) {
	if !c.Enabled() {
		return nil, nil
	}
	key := c.Key(req)

	if c.local != nil {
		if v, found := c.local.Get(key); found {
			logger.Debugw("cache hit", "backend", CacheBackendMemory, "key", key)
			return v.(*AskResponse), nil
		}
		return nil, nil
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", key)
		return nil, errors.ErrCacheUnavailable.WithCause(err)
	}

	var resp AskResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Warnw("failed to unmarshal cached result", "error", err.Error(), "key", key)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}
	logger.Debugw("cache hit", "backend", CacheBackendRedis, "key", key)
	return &resp, nil
}

// Set 将问答结果写入缓存。
func (c *QueryCache) Set(ctx context.Context, req *AskRequest, resp *AskResponse) error {
	if !c.Enabled() || resp == nil {
		return nil
	}
	key := c.Key(req)

	if c.local != nil {
		c.local.Set(key, resp, gocache.DefaultExpiration)
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", key)
		return errors.ErrCacheUnavailable.WithCause(err)
	}
	return nil
}

// Clear 清除全部问答缓存，在记录重新加载后调用。
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if c.local != nil {
		c.local.Flush()
		return nil
	}

	// 使用 SCAN 命令查找所有匹配的键
	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"ask:*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		logger.Warnw("error during cache scan", "error", err.Error())
		return errors.ErrCacheUnavailable.WithCause(err)
	}
	logger.Infow("cleared query cache", "deleted_count", deleted)
	return nil
}

// Stats 获取缓存统计信息。
func (c *QueryCache) Stats() map[string]any {
	if !c.Enabled() {
		return map[string]any{"enabled": false}
	}
	stats := map[string]any{
		"enabled":    true,
		"backend":    c.config.Backend,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}
	if c.local != nil {
		stats["items"] = c.local.ItemCount()
	}
	return stats
}
