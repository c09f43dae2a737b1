package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/agentmem/pkg/jsonutil"
)

// CacheConfig configures CachedProvider.
type CacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	KeyPrefix string
}

// DefaultCacheConfig returns a day-long TTL: embeddings for a fixed
// (model, text) pair never change, so a generous TTL costs nothing.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{Enabled: true, TTL: 24 * time.Hour, KeyPrefix: "agentmem:emb:"}
}

// CachedProvider wraps a Provider with a Redis-backed cache keyed by the
// SHA-256 of the input text, so repeated episodes (or repeated derivatives
// across rerank passes) skip the round trip to the embedding model.
type CachedProvider struct {
	provider Provider
	redis    *goredis.Client
	config   *CacheConfig
}

// NewCachedProvider wraps provider with a Redis cache. A nil redis client or
// disabled config degrades to calling provider directly.
func NewCachedProvider(provider Provider, redis *goredis.Client, config *CacheConfig) *CachedProvider {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return &CachedProvider{provider: provider, redis: redis, config: config}
}

var _ Provider = (*CachedProvider)(nil)

func (c *CachedProvider) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.config.KeyPrefix + c.provider.Name() + ":" + hex.EncodeToString(hash[:])
}

// EmbedSingle returns a cached embedding when present, else computes and caches it.
func (c *CachedProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if !c.config.Enabled || c.redis == nil {
		return c.provider.EmbedSingle(ctx, text)
	}

	key := c.cacheKey(text)
	if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var embedding []float32
		if err := jsonutil.Unmarshal(data, &embedding); err == nil {
			return embedding, nil
		}
		_ = c.redis.Del(ctx, key).Err()
	} else if err != goredis.Nil {
		logger.Warnw("redis get error, falling back to provider", "error", err.Error())
	}

	embedding, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := jsonutil.Marshal(embedding); err == nil {
		if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
			logger.Warnw("failed to cache embedding", "error", err.Error(), "key", key)
		}
	}
	return embedding, nil
}

// Embed caches each text independently, only calling the underlying provider
// for the subset that missed the cache.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.config.Enabled || c.redis == nil {
		return c.provider.Embed(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		data, err := c.redis.Get(ctx, c.cacheKey(text)).Bytes()
		if err == nil {
			var embedding []float32
			if err := jsonutil.Unmarshal(data, &embedding); err == nil {
				embeddings[i] = embedding
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		computed, err := c.provider.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for i, idx := range missIdx {
			embeddings[idx] = computed[i]
			if data, err := jsonutil.Marshal(computed[i]); err == nil {
				if err := c.redis.Set(ctx, c.cacheKey(missTexts[i]), data, c.config.TTL).Err(); err != nil {
					logger.Warnw("failed to cache embedding", "error", err.Error())
				}
			}
		}
	}
	return embeddings, nil
}

// Name returns the wrapped provider's name with a "-cached" suffix.
func (c *CachedProvider) Name() string {
	return c.provider.Name() + "-cached"
}

// ClearCache deletes every cached embedding for the wrapped provider.
func (c *CachedProvider) ClearCache(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}
	pattern := c.config.KeyPrefix + c.provider.Name() + ":*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		}
	}
	return iter.Err()
}
