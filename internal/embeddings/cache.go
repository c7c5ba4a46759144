package embeddings

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnsupportedCache is returned for an unknown cache URI scheme.
var ErrUnsupportedCache = errors.New("unsupported cache uri")

// Cache stores embeddings by key
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// OpenCache opens the cache named by uri: memory:// or redis://host:port/db.
func OpenCache(ctx context.Context, uri string, size int, ttl time.Duration) (Cache, error) {
	switch {
	case strings.HasPrefix(uri, "memory://"):
		return NewMemoryCache(size), nil
	case strings.HasPrefix(uri, "redis://"), strings.HasPrefix(uri, "rediss://"):
		opts, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis uri: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		prefix := "ragbook:emb:"
		if u, err := url.Parse(uri); err == nil {
			if p := u.Query().Get("prefix"); p != "" {
				prefix = p
			}
		}
		return NewRedisCache(client, prefix, ttl), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCache, uri)
	}
}

// CacheKey derives the key for text embedded by model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is a size-bounded LRU cache
type MemoryCache struct {
	mu    sync.Mutex
	size  int
	ll    *list.List
	items map[string]*list.Element
}

type memoryEntry struct {
	key string
	vec []float32
}

// NewMemoryCache creates an LRU holding at most size vectors
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{size: size, ll: list.New(), items: make(map[string]*list.Element)}
}

// Get returns the cached vector and marks it recently used
func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	c.ll.MoveToFront(el)
	return el.Value.(*memoryEntry).vec, true, nil
}

// Set stores vec, evicting the least recently used entry when full
func (c *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*memoryEntry).vec = vec
		c.ll.MoveToFront(el)
		return nil
	}

	c.items[key] = c.ll.PushFront(&memoryEntry{key: key, vec: vec})
	for c.ll.Len() > c.size {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// Len returns the number of cached vectors
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// RedisCache stores JSON-encoded vectors in Redis with a TTL
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached vector if present
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return vec, true, nil
}

// Set stores vec under key
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Cached serves embeddings from a Cache before calling the wrapped embedder.
type Cached struct {
	next  Embedder
	cache Cache
}

// NewCached wraps emb with cache
func NewCached(emb Embedder, cache Cache) *Cached {
	return &Cached{next: emb, cache: cache}
}

// Model returns the embedding model name
func (c *Cached) Model() string {
	return c.next.Model()
}

// Embed returns a cached vector or embeds and stores text
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds only the texts missing from the cache
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.next.Model()
	out := make([][]float32, len(texts))

	var (
		missing []string
		slots   []int
	)
	for i, text := range texts {
		vec, ok, err := c.cache.Get(ctx, CacheKey(model, text))
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missing), len(vecs))
	}

	for j, vec := range vecs {
		out[slots[j]] = vec
		if err := c.cache.Set(ctx, CacheKey(model, missing[j]), vec); err != nil {
			return nil, err
		}
	}
	return out, nil
}
