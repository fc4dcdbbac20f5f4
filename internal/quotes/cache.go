package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"paper-ledger/internal/models"
)

const (
	// quoteKeyPrefix is the Redis key prefix for cached quotes.
	// Format: ledger:quote:{symbol}
	quoteKeyPrefix = "ledger:quote"

	// DefaultCacheTTL is how long a cached quote stays fresh. Quotes older
	// than this go back to the upstream source.
	DefaultCacheTTL = 30 * time.Second
)

// Cache wraps a Source with a Redis quote cache and an in-memory fallback.
// When Redis is unavailable the cache degrades to the in-memory map so
// reconciliation and stop monitoring keep running.
type Cache struct {
	source Source
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger

	mu        sync.RWMutex
	local     map[string]*models.Quote
	available atomic.Bool
}

// NewCache creates a Cache in front of source. A nil client means
// memory-only mode.
func NewCache(source Source, client *redis.Client, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		source: source,
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "quote-cache").Logger(),
		local:  make(map[string]*models.Quote),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			c.log.Warn().Err(err).Msg("redis unavailable at startup, using in-memory cache")
		} else {
			c.available.Store(true)
		}
	}
	return c
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("%s:%s", quoteKeyPrefix, symbol)
}

// GetQuote returns a cached quote when one is fresh, otherwise fetches
// from the upstream source and caches the result.
func (c *Cache) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if q := c.cached(ctx, symbol); q != nil {
		return q, nil
	}

	q, err := c.source.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.Put(ctx, q)
	return q, nil
}

// Put caches a quote. Price-tick consumers call this directly so a live
// feed keeps the cache warm without upstream fetches.
func (c *Cache) Put(ctx context.Context, q *models.Quote) {
	if q == nil {
		return
	}

	c.mu.Lock()
	c.local[q.Symbol] = q
	c.mu.Unlock()

	if c.client == nil || !c.available.Load() {
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, quoteKey(q.Symbol), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("redis write failed, falling back to in-memory cache")
		c.available.Store(false)
	}
}

// cached returns a fresh cached quote or nil.
func (c *Cache) cached(ctx context.Context, symbol string) *models.Quote {
	if c.client != nil && c.available.Load() {
		data, err := c.client.Get(ctx, quoteKey(symbol)).Result()
		switch {
		case err == nil:
			var q models.Quote
			if json.Unmarshal([]byte(data), &q) == nil && c.fresh(&q) {
				return &q
			}
		case errors.Is(err, redis.Nil):
			// Not cached; fall through to the local map.
		default:
			c.log.Warn().Err(err).Msg("redis read failed, falling back to in-memory cache")
			c.available.Store(false)
		}
	}

	c.mu.RLock()
	q := c.local[symbol]
	c.mu.RUnlock()
	if q != nil && c.fresh(q) {
		return q
	}
	return nil
}

func (c *Cache) fresh(q *models.Quote) bool {
	return time.Since(q.Timestamp) <= c.ttl
}

// CheckConnection pings Redis and restores availability on recovery.
func (c *Cache) CheckConnection(ctx context.Context) error {
	if c.client == nil {
		return errors.New("no redis client configured")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.available.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if !c.available.Swap(true) {
		c.log.Info().Msg("redis connection recovered")
	}
	return nil
}
