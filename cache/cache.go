package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
)

const (
	sweepInterval = 5 * time.Minute
	entryTTL      = time.Hour
)

type entry struct {
	result    *models.NormalizedScrapeResult
	createdAt time.Time
}

// Cache is an in-memory store of recent scrape results.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Cache holding at most maxEntries results. A background
// goroutine drops entries older than an hour until Close is called.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key derives the cache key for a storefront URL and description format.
func Key(url, descriptionFormat string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(descriptionFormat))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached result younger than maxAgeMs milliseconds.
// maxAgeMs <= 0 always misses.
func (c *Cache) Get(key string, maxAgeMs int) (*models.NormalizedScrapeResult, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.result, true
}

// Set stores a result, evicting an arbitrary entry when full.
func (c *Cache) Set(key string, result *models.NormalizedScrapeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		// Map iteration order is random.
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{result: result, createdAt: time.Now()}
}

// Len reports the number of cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the expiry goroutine.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.sweep(now.Add(-entryTTL))
		}
	}
}

func (c *Cache) sweep(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
