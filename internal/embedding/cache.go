package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long cached vectors live. Embeddings are
// deterministic, so the TTL only bounds cache growth, not staleness.
const DefaultCacheTTL = 24 * time.Hour

// CachedEmbedder is a read-through Redis cache in front of another Embedder.
// Cache failures are logged and never fail the embedding call — the inner
// embedder remains the source of truth.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder wraps inner with a Redis cache.
func NewCachedEmbedder(inner Embedder, client *redis.Client, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		ttl:    DefaultCacheTTL,
		logger: logger,
	}
}

// Name returns the inner model identifier.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Dimension returns the inner model dimension.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Embed returns the cached vector when present, otherwise embeds and caches.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	key := c.key(text)

	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, vec)
	return vec, nil
}

// EmbedBatch embeds texts, serving cache hits and batching the misses into a
// single inner call. Results are joined back by position within the miss
// list, never by guessing, so order is preserved. The inner batch fails
// atomically, and so does this wrapper.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := c.get(ctx, c.key(text)); ok {
			vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		fresh, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range fresh {
			i := missIdx[j]
			vectors[i] = vec
			c.put(ctx, c.key(texts[i]), vec)
		}
	}

	return vectors, nil
}

// key derives the cache key from model name and content hash.
func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.inner.Name() + ":" + hex.EncodeToString(sum[:16])
}

// get fetches and decodes a cached vector. Any failure is a miss.
func (c *CachedEmbedder) get(ctx context.Context, key string) (Vector, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("embedding cache read failed", "error", err)
		}
		return nil, false
	}

	vec, err := decodeVector(data, c.inner.Dimension())
	if err != nil {
		c.logger.Warn("embedding cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return vec, true
}

// put stores a vector; failures are logged and ignored.
func (c *CachedEmbedder) put(ctx context.Context, key string, vec Vector) {
	if err := c.client.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
}

// encodeVector serializes a vector as little-endian float32s.
func encodeVector(vec Vector) []byte {
	buf := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// decodeVector deserializes a vector, checking the expected dimension.
func decodeVector(data []byte, dim int) (Vector, error) {
	if len(data) != 4*dim {
		return nil, fmt.Errorf("unexpected payload size %d for dimension %d", len(data), dim)
	}
	vec := make(Vector, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
