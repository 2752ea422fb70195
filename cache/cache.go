package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the lifetime of cached blocks unless configured otherwise.
const DefaultTTL = 5 * time.Minute

const cleanupInterval = time.Minute

type CacheItem struct {
	Value      interface{}
	Expiration int64
}

func (item *CacheItem) expired(now int64) bool {
	return item.Expiration > 0 && now > item.Expiration
}

// Cache is a TTL keyed cache used for block lookups by hash and by number.
type Cache struct {
	items  map[string]*CacheItem
	mutex  sync.RWMutex
	ttl    time.Duration
	stopCh chan struct{}
	once   sync.Once
}

// NewCache starts a cache whose entries live for ttl (DefaultTTL when ttl <= 0).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		items:  make(map[string]*CacheItem),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Set stores value with the cache TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value; a non-positive duration never expires.
func (c *Cache) SetWithTTL(key string, value interface{}, duration time.Duration) {
	var expiration int64
	if duration > 0 {
		expiration = time.Now().Add(duration).UnixNano()
	}
	c.mutex.Lock()
	c.items[key] = &CacheItem{Value: value, Expiration: expiration}
	c.mutex.Unlock()
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	item, exists := c.items[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}
	if item.expired(time.Now().UnixNano()) {
		c.mutex.Lock()
		if current, ok := c.items[key]; ok && current == item {
			delete(c.items, key)
		}
		c.mutex.Unlock()
		return nil, false
	}
	return item.Value, true
}

func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]*CacheItem)
}

func (c *Cache) Count() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}

func (c *Cache) purge() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := time.Now().UnixNano()
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}
