package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/choraleia/analyst/pkg/models"
)

var ErrCacheMiss = errors.New("result not cached")

const resultKeyPrefix = "analyst:result:"

// ResultCache keeps query results by run ID so charts can be re-derived
// without asking the model again.
type ResultCache interface {
	Put(ctx context.Context, runID string, result *models.QueryResult) error
	// Get returns ErrCacheMiss for unknown or expired runs.
	Get(ctx context.Context, runID string) (*models.QueryResult, error)
}

type cacheEntry struct {
	result  *models.QueryResult
	expires time.Time
}

// MemoryResultCache is a process-local ResultCache with a fixed TTL.
type MemoryResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewMemoryResultCache(ttl time.Duration) *MemoryResultCache {
	return &MemoryResultCache{ttl: ttl, entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *MemoryResultCache) Put(_ context.Context, runID string, result *models.QueryResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
		}
	}
	c.entries[runID] = cacheEntry{result: result, expires: now.Add(c.ttl)}
	return nil
}

func (c *MemoryResultCache) Get(_ context.Context, runID string) (*models.QueryResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[runID]
	if !ok {
		return nil, ErrCacheMiss
	}
	if c.now().After(e.expires) {
		delete(c.entries, runID)
		return nil, ErrCacheMiss
	}
	return e.result, nil
}

// RedisResultCache stores results as JSON with a TTL.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{client: client, ttl: ttl}
}

// DialRedisResultCache connects to addr and checks the server answers.
func DialRedisResultCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 10 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisResultCache(client, ttl), nil
}

func (c *RedisResultCache) Put(ctx context.Context, runID string, result *models.QueryResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, resultKeyPrefix+runID, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache result of run %s: %w", runID, err)
	}
	return nil
}

func (c *RedisResultCache) Get(ctx context.Context, runID string) (*models.QueryResult, error) {
	b, err := c.client.Get(ctx, resultKeyPrefix+runID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read cached result of run %s: %w", runID, err)
	}
	var result models.QueryResult
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("decode cached result of run %s: %w", runID, err)
	}
	return &result, nil
}

func (c *RedisResultCache) Close() error {
	return c.client.Close()
}
