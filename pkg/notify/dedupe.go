package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL is how long RedisDeduper remembers a tag.
const DefaultDedupeTTL = 7 * 24 * time.Hour

// Deduper remembers delivered tags.
type Deduper interface {
	// Claim marks tag as delivered and reports whether it was new.
	Claim(ctx context.Context, tag string) (bool, error)

	// Release forgets tag so it can be delivered again.
	Release(ctx context.Context, tag string) error
}

// MemoryDeduper remembers tags for the lifetime of the process.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduper creates an empty in-memory deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

// Claim implements Deduper.
func (d *MemoryDeduper) Claim(ctx context.Context, tag string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[tag]; ok {
		return false, nil
	}
	d.seen[tag] = struct{}{}
	return true, nil
}

// Release implements Deduper.
func (d *MemoryDeduper) Release(ctx context.Context, tag string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, tag)
	return nil
}

// RedisDeduper shares delivered tags across processes with SETNX.
type RedisDeduper struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisDeduper creates a deduper. ttl <= 0 uses DefaultDedupeTTL.
func NewRedisDeduper(redisClient *redis.Client, ttl time.Duration) *RedisDeduper {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{redis: redisClient, ttl: ttl}
}

func dedupeKey(tag string) string {
	return "steam-monitor:notified:" + tag
}

// Claim implements Deduper.
func (d *RedisDeduper) Claim(ctx context.Context, tag string) (bool, error) {
	ok, err := d.redis.SetNX(ctx, dedupeKey(tag), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release implements Deduper.
func (d *RedisDeduper) Release(ctx context.Context, tag string) error {
	if err := d.redis.Del(ctx, dedupeKey(tag)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
