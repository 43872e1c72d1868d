// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/logging"
)

// Cache is a shared vector cache. Get reports a miss with ok == false and a
// nil error.
type Cache interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CacheOptions configures Cached.
type CacheOptions struct {
	// Size is the in-process LRU capacity; 0 disables it.
	Size int

	// Shared is consulted after the LRU misses.
	Shared Cache

	Logger *logrus.Logger
}

// Cached memoizes an Embedder in two tiers: an in-process LRU and an
// optional shared cache. Shared-cache failures are logged and fall through
// to the wrapped embedder.
type Cached struct {
	next   Embedder
	id     string
	memory *lru.Cache[string, []float32]
	shared Cache
	log    *logrus.Logger
}

// NewCached wraps next.
func NewCached(next Embedder, opts CacheOptions) (*Cached, error) {
	c := &Cached{
		next:   next,
		id:     ID(next),
		shared: opts.Shared,
		log:    logging.OrDiscard(opts.Logger),
	}
	if opts.Size > 0 {
		mem, err := lru.New[string, []float32](opts.Size)
		if err != nil {
			return nil, fmt.Errorf("creating embedding LRU: %w", err)
		}
		c.memory = mem
	}
	return c, nil
}

// ID implements Identifier.
func (c *Cached) ID() string { return c.id }

// Embed implements Embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	key := cacheKey(c.id, text)

	if c.memory != nil {
		if vec, ok := c.memory.Get(key); ok {
			return vec, nil
		}
	}

	if c.shared != nil {
		vec, ok, err := c.shared.Get(ctx, key)
		switch {
		case err != nil:
			c.log.WithError(err).Warn("embedding cache read failed")
		case ok:
			c.remember(key, vec)
			return vec, nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.remember(key, vec)
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, vec); err != nil {
			c.log.WithError(err).Warn("embedding cache write failed")
		}
	}
	return vec, nil
}

func (c *Cached) remember(key string, vec []float32) {
	if c.memory != nil {
		c.memory.Add(key, vec)
	}
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

const redisKeyPrefix = "trialmatch:embed:"

// RedisCache stores vectors as JSON arrays with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps client. A ttl of zero keeps entries until evicted.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("embed: redis client cannot be nil")
	}
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisCacheFromURL parses a redis:// URL.
func NewRedisCacheFromURL(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), ttl), nil
}

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embed: redis get: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("embed: decoding cached vector: %w", err)
	}
	return vec, true, nil
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("embed: encoding vector: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("embed: redis set: %w", err)
	}
	return nil
}
