package rates

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
)

const redisKeyPrefix = "exchange_rate:"

type Fetcher interface {
	FetchRate(ctx context.Context, currency string) (float64, bool, error)
}

// sharedStore is the cross-process quote store. Get reports the value's
// remaining lifetime so local caching never extends it.
type sharedStore interface {
	Get(key string) (value string, remaining time.Duration, found bool, err error)
	Set(key string, value string, ttl time.Duration) error
}

type redisSharedStore struct{}

func (redisSharedStore) Get(key string) (string, time.Duration, bool, error) {
	return config.GetRedisValueWithTTL(key)
}

func (redisSharedStore) Set(key string, value string, ttl time.Duration) error {
	return config.SetRedisValue(key, value, ttl)
}

// Cache memoizes quotes with a TTL so one flaky feed request never stalls a
// reconciliation tick. Freshness is kept locally with an injected clock and
// written through to Redis so sibling processes reuse the same quote.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	shared  sharedStore

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rate      float64
	expiresAt time.Time
}

func NewCache(fetcher Fetcher, ttl time.Duration) *Cache {
	return NewCacheWithClock(fetcher, ttl, time.Now)
}

func NewCacheWithClock(fetcher Fetcher, ttl time.Duration, now func() time.Time) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		now:     now,
		shared:  redisSharedStore{},
		entries: map[string]cacheEntry{},
	}
}

// Rate returns the cached quote for the currency, fetching on miss or expiry.
// ok is false when no quote could be obtained this cycle; callers treat that
// as "exchange rate unknown", a recoverable condition.
func (c *Cache) Rate(ctx context.Context, currency string) (float64, bool) {
	c.mu.Lock()
	entry, cached := c.entries[currency]
	c.mu.Unlock()
	if cached && c.now().Before(entry.expiresAt) {
		return entry.rate, true
	}

	if val, remaining, found, err := c.shared.Get(redisKeyPrefix + currency); err == nil && found {
		if rate, perr := strconv.ParseFloat(val, 64); perr == nil {
			// Adopt the shared value for its remaining lifetime, never a
			// fresh full TTL.
			c.storeFor(currency, rate, clampTTL(remaining, c.ttl))
			return rate, true
		}
	}

	rate, ok, err := c.fetcher.FetchRate(ctx, currency)
	if err != nil {
		config.LogError(config.GetLogger(), "rates", "Rate", "fetch "+currency, nil, err)
		return 0, false
	}
	if !ok {
		return 0, false
	}

	c.storeFor(currency, rate, c.ttl)
	if err := c.shared.Set(redisKeyPrefix+currency, strconv.FormatFloat(rate, 'f', -1, 64), c.ttl); err != nil {
		config.LogError(config.GetLogger(), "rates", "Rate", "cache "+currency, nil, err)
	}
	return rate, true
}

func (c *Cache) storeFor(currency string, rate float64, ttl time.Duration) {
	c.mu.Lock()
	c.entries[currency] = cacheEntry{rate: rate, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// clampTTL bounds a shared value's remaining lifetime to the cache TTL.
// Non-positive remaining means the key carries no expiry information.
func clampTTL(remaining, max time.Duration) time.Duration {
	if remaining <= 0 || remaining > max {
		return max
	}
	return remaining
}
