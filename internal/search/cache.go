package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/courttext/concordance/pkg/metrics"
	pkgredis "github.com/courttext/concordance/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "concord:"

// ResultCache caches serialized search hits in Redis. Keys embed the
// decision id so a re-index can invalidate exactly that decision's entries.
// Concurrent identical queries are collapsed with singleflight.
type ResultCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewResultCache creates a ResultCache with the given TTL. m may be nil.
func NewResultCache(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// cacheKey builds a per-decision cache key for a query.
func cacheKey(decisionID int64, kind, q string, before, after, max int) string {
	raw := fmt.Sprintf("%s|%s|%d|%d|%d", kind, q, before, after, max)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%sdec:%d:%x", keyPrefix, decisionID, sum[:16])
}

// GetOrCompute returns the cached hits for key, or runs compute once (across
// concurrent callers) and caches the result. Cache failures degrade to a
// direct compute.
func (c *ResultCache) GetOrCompute(ctx context.Context, decisionID int64, key string, compute func() ([]Hit, error)) ([]Hit, bool, error) {
	if hits, ok := c.get(ctx, key); ok {
		return hits, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if hits, ok := c.get(ctx, key); ok {
			return hits, nil
		}
		hits, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, hits)
		return hits, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]Hit), false, nil
}

func (c *ResultCache) get(ctx context.Context, key string) ([]Hit, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var hits []Hit
	if err := json.Unmarshal([]byte(data), &hits); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return hits, true
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *ResultCache) set(ctx context.Context, key string, hits []Hit) {
	data, err := json.Marshal(hits)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// InvalidateDecision removes every cached result for the given decision.
func (c *ResultCache) InvalidateDecision(ctx context.Context, decisionID int64) error {
	pattern := fmt.Sprintf("%sdec:%d:*", keyPrefix, decisionID)
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating decision cache: %w", err)
	}
	c.logger.Info("decision cache invalidated", "decision_id", decisionID, "keys_deleted", deleted)
	return nil
}

// Stats returns cumulative hit and miss counts.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
