package breaker

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ttlCache is the breaker's "small TTL cache" used to serve
// last-known-good values while the circuit is open. When a Redis
// client is available it mirrors entries there (shared across
// instances, self-expiring via Redis TTL); it also keeps a bounded
// in-process LRU so a single instance works without Redis.
type ttlCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List

	redisClient *redis.Client
	redisPrefix string
}

type cacheEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

func newTTLCache(capacity int, ttl time.Duration, redisClient *redis.Client, name string) *ttlCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ttlCache{
		capacity:    capacity,
		ttl:         ttl,
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		redisClient: redisClient,
		redisPrefix: fmt.Sprintf("breaker:%s:cache:", name),
	}
}

func (c *ttlCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			c.order.MoveToFront(el)
			val := entry.value
			c.mu.Unlock()
			return val, true
		}
		c.removeLocked(el)
	}
	c.mu.Unlock()

	if c.redisClient == nil {
		return nil, false
	}
	raw, err := c.redisClient.Get(context.Background(), c.redisPrefix+key).Result()
	if err != nil {
		return nil, false
	}
	var val interface{}
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, false
	}
	return val, true
}

func (c *ttlCache) set(key string, value interface{}) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).value = value
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
	} else {
		entry := &cacheEntry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
		el := c.order.PushFront(entry)
		c.entries[key] = el
		if c.order.Len() > c.capacity {
			oldest := c.order.Back()
			if oldest != nil {
				c.removeLocked(oldest)
			}
		}
	}
	c.mu.Unlock()

	if c.redisClient != nil {
		if raw, err := json.Marshal(value); err == nil {
			c.redisClient.Set(context.Background(), c.redisPrefix+key, raw, c.ttl)
		}
	}
}

func (c *ttlCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}
