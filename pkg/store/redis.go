package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

// DefaultRedisKey is the hash holding the tracking set.
const DefaultRedisKey = "steam-monitor:apps"

// ErrInvalidEntry indicates a stored app could not be decoded.
var ErrInvalidEntry = errors.New("invalid stored app")

// Redis stores each app as a JSON encoded field of one hash.
type Redis struct {
	redis *redis.Client
	key   string
}

var _ tracker.Store = (*Redis)(nil)

// NewRedis creates a Redis store using DefaultRedisKey.
func NewRedis(redisClient *redis.Client) *Redis {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Redis{
		redis: redisClient,
		key:   DefaultRedisKey,
	}
}

// WithKey returns a copy of the store using a different hash key.
func (r *Redis) WithKey(key string) *Redis {
	return &Redis{redis: r.redis, key: key}
}

// Load reads the whole hash. A missing hash is an empty set.
func (r *Redis) Load(ctx context.Context) (map[string]tracker.Entity, error) {
	fields, err := r.redis.HGetAll(ctx, r.key).Result()
	observe("redis", "load", err)
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	entities := make(map[string]tracker.Entity, len(fields))
	for id, data := range fields {
		var e tracker.Entity
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			StoreErrors.WithLabelValues("redis", "load").Inc()
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidEntry, id, err)
		}
		e.ID = id
		entities[id] = e
	}

	StoreEntities.WithLabelValues("redis").Set(float64(len(entities)))
	return entities, nil
}

// Save writes one app.
func (r *Redis) Save(ctx context.Context, e tracker.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		observe("redis", "save", err)
		return fmt.Errorf("marshal app %s: %w", e.ID, err)
	}

	err = r.redis.HSet(ctx, r.key, e.ID, data).Err()
	observe("redis", "save", err)
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete removes one app. Deleting an unknown id is not an error.
func (r *Redis) Delete(ctx context.Context, id string) error {
	err := r.redis.HDel(ctx, r.key, id).Err()
	observe("redis", "delete", err)
	if err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
