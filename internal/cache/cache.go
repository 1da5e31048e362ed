package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-bridge/internal/models"
)

// Cache holds the latest weather snapshot per station.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, stationID string) (models.Weather, bool, error)
	Set(ctx context.Context, stationID string, value models.Weather, ttl time.Duration) error
}

// InMemoryCache implements Cache using a mutex-guarded map with TTL-based expiration.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.Weather
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get returns (data, true, nil) on hit and (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, stationID string) (models.Weather, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[stationID]
	if !ok {
		return models.Weather{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, stationID)
		return models.Weather{}, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, stationID string, value models.Weather, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[stationID] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
