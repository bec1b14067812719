package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharmaguard-server/internal/domain"
)

const explanationKeyPrefix = "pharmaguard:explanation:"

// CacheClient wraps Redis client with caching functionality for generated explanations
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Apply cache-specific configurations
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedExplanation represents a cached explanation with metadata
type CachedExplanation struct {
	Data      *domain.Explanation `json:"data"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// GetExplanation retrieves a cached explanation
func (c *CacheClient) GetExplanation(ctx context.Context, key string) (*domain.Explanation, bool, error) {
	redisKey := explanationKeyPrefix + key

	val, err := c.redis.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get explanation cache: %w", err)
	}

	var cached CachedExplanation
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetExplanation caches an explanation
func (c *CacheClient) SetExplanation(ctx context.Context, key string, explanation *domain.Explanation, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := CachedExplanation{
		Data:      explanation,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal explanation cache data: %w", err)
	}

	return c.redis.Set(ctx, explanationKeyPrefix+key, jsonData, ttl).Err()
}

// InvalidateExplanations removes every cached explanation
func (c *CacheClient) InvalidateExplanations(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, explanationKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Health checks the Redis connection
func (c *CacheClient) Health(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

// ExplanationCacheKey derives a stable key from the fields that shape an explanation.
func ExplanationCacheKey(req domain.ExplanationRequest) string {
	parts := []string{
		req.Drug,
		req.Gene,
		req.Diplotype,
		req.Phenotype,
		string(req.RiskLabel),
		string(req.Severity),
		strings.Join(req.ReferenceIDs(), ","),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", hash[:16])
}
