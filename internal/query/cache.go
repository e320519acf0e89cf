package query

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// TTLs holds per-entity lifetimes.
type TTLs struct {
	Initiatives  time.Duration
	Initiative   time.Duration
	Transactions time.Duration
	Monitoring   time.Duration
	Users        time.Duration
}

// DefaultTTLs mirrors the lifetimes used by the web client.
func DefaultTTLs() TTLs {
	return TTLs{
		Initiatives:  2 * time.Minute,
		Initiative:   5 * time.Minute,
		Transactions: 2 * time.Minute,
		Monitoring:   5 * time.Minute,
		Users:        10 * time.Minute,
	}
}

func (t TTLs) withDefaults() TTLs {
	def := DefaultTTLs()
	if t.Initiatives <= 0 {
		t.Initiatives = def.Initiatives
	}
	if t.Initiative <= 0 {
		t.Initiative = def.Initiative
	}
	if t.Transactions <= 0 {
		t.Transactions = def.Transactions
	}
	if t.Monitoring <= 0 {
		t.Monitoring = def.Monitoring
	}
	if t.Users <= 0 {
		t.Users = def.Users
	}
	return t
}

// Cache stores query results keyed by entity, id and filters. Concurrent
// fetches of the same key share one load.
type Cache struct {
	store *cache.Cache
	group singleflight.Group
	ttls  TTLs
}

// New builds a cache with the given lifetimes.
func New(ttls TTLs) *Cache {
	ttls = ttls.withDefaults()
	return &Cache{
		store: cache.New(ttls.Transactions, time.Minute),
		ttls:  ttls,
	}
}

// TTLs returns the configured lifetimes.
func (c *Cache) TTLs() TTLs {
	return c.ttls
}

// Fetch returns the cached value for key or loads and stores it. Errors
// are never cached.
func Fetch[T any](c *Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}
	if cached, ok := c.store.Get(key); ok {
		if typed, ok := cached.(T); ok {
			return typed, nil
		}
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		c.store.Set(key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}

// Peek returns a cached value without loading.
func Peek[T any](c *Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	cached, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := cached.(T)
	return typed, ok
}

// Invalidate drops the given keys.
func (c *Cache) Invalidate(keys ...string) {
	if c == nil {
		return
	}
	for _, key := range keys {
		c.store.Delete(key)
	}
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	if c == nil {
		return
	}
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

// Flush empties the cache, used on logout.
func (c *Cache) Flush() {
	if c == nil {
		return
	}
	c.store.Flush()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.store.ItemCount()
}
