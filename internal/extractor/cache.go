package extractor

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-registry/internal/database"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a string key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache stores extraction results in Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis using a redis:// URL.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get returns the cached value or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores a value with the given ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// cachedResult is the cached outcome of one extraction. Vectors are stored
// with the database blob codec so they round-trip bit for bit.
type cachedResult struct {
	Face   bool   `json:"face"`
	Vector []byte `json:"vector,omitempty"`
}

// CachedExtractor memoizes extraction results by image content.
// Faults are never cached and cache failures fall through to the wrapped extractor.
type CachedExtractor struct {
	next      Extractor
	cache     Cache
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewCachedExtractor wraps next with a result cache. model is part of the
// key so switching models never serves stale vectors.
func NewCachedExtractor(next Extractor, cache Cache, model string, ttl time.Duration, logger *zap.Logger) *CachedExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedExtractor{
		next:      next,
		cache:     cache,
		ttl:       ttl,
		keyPrefix: "face-embedding:" + model + ":",
		logger:    logger,
	}
}

func (c *CachedExtractor) key(image []byte) string {
	sum := sha1.Sum(image)
	return c.keyPrefix + hex.EncodeToString(sum[:])
}

// Extract returns the cached result for the image or computes and caches it.
func (c *CachedExtractor) Extract(ctx context.Context, image []byte) ([]float32, error) {
	key := c.key(image)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		vector, face, decodeErr := decodeCached(raw)
		if decodeErr == nil {
			if !face {
				return nil, ErrNoFace
			}
			return vector, nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(decodeErr))
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("extraction cache unavailable", zap.Error(err))
	}

	vector, err := c.next.Extract(ctx, image)
	switch {
	case errors.Is(err, ErrNoFace):
		c.store(ctx, key, cachedResult{Face: false})
		return nil, err
	case err != nil:
		return nil, err
	}
	c.store(ctx, key, cachedResult{Face: true, Vector: database.EncodeVector(vector)})
	return vector, nil
}

func (c *CachedExtractor) store(ctx context.Context, key string, result cachedResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("failed to write cache entry", zap.String("key", key), zap.Error(err))
	}
}

func decodeCached(raw []byte) ([]float32, bool, error) {
	var result cachedResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, err
	}
	if !result.Face {
		return nil, false, nil
	}
	vector, err := database.DecodeVector(result.Vector)
	if err != nil {
		return nil, false, err
	}
	if len(vector) == 0 {
		return nil, false, errors.New("empty cached vector")
	}
	return vector, true, nil
}
