// Package cache stores matching results in Redis for repeat browse queries.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"advising-workers/internal/common/fallback"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/common/metrics"
)

const (
	allSegment   = "all"
	operationSet = "query_cache_write"
)

// Key builds "{identity}:{country|all}:{search|all}:{semantic}".
func Key(identity, country, search string, semantic bool) string {
	return strings.Join([]string{
		orAll(identity, "guest"),
		orAll(country, allSegment),
		orAll(search, allSegment),
		strconv.FormatBool(semantic),
	}, ":")
}

// Cacheable reports whether a result may be stored. Free-text searches and
// empty results are never cached.
func Cacheable(search string, results int) bool {
	return strings.TrimSpace(search) == "" && results > 0
}

func orAll(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

type QueryCache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	log     logger.Logger
}

func NewQueryCache(client *redis.Client, ttl, timeout time.Duration, log logger.Logger) *QueryCache {
	return &QueryCache{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		log:     log.WithFields(map[string]interface{}{"component": "query-cache"}),
	}
}

// Get decodes the cached value at key into out and reports whether it was there.
func (c *QueryCache) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, out); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Store writes value in the background. The caller does not wait; the
// returned channel reports the outcome for those who care.
func (c *QueryCache) Store(key string, value interface{}) <-chan error {
	return fallback.Go(c.log, operationSet, c.timeout, func(ctx context.Context) error {
		data, err := json.Marshal(value)
		if err != nil {
			metrics.CacheWrites.WithLabelValues("error").Inc()
			return fmt.Errorf("cache encode %s: %w", key, err)
		}
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			metrics.CacheWrites.WithLabelValues("error").Inc()
			return fmt.Errorf("cache set %s: %w", key, err)
		}
		metrics.CacheWrites.WithLabelValues("ok").Inc()
		c.log.Debug("cached query result", map[string]interface{}{"key": key, "ttl": c.ttl.String()})
		return nil
	})
}
