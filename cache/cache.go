package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/newswalk/models"
)

// entry holds a cached outcome with its creation timestamp.
type entry struct {
	outcome   *models.SearchOutcome
	createdAt time.Time
}

// Cache is an in-memory cache of finished searches.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older
// than 1 hour.
func New(maxEntries int) *Cache {
	c := newCache(maxEntries, time.Now)
	go c.cleanupLoop()
	return c
}

func newCache(maxEntries int, now func() time.Time) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        time.Hour,
		now:        now,
	}
}

// Key generates a cache key from the normalized search request.
func Key(req models.SearchRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Phrase))
	h.Write([]byte("|"))
	h.Write([]byte(req.Section))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(req.LookbackMonths)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached outcome if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
func (c *Cache) Get(key string, maxAgeMs int) (*models.SearchOutcome, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	return e.outcome, true
}

// Set stores an outcome. Only walks that finished Done are cached, since a
// failed walk holds an arbitrary prefix of the listing.
func (c *Cache) Set(key string, out *models.SearchOutcome) {
	if out == nil || out.Walk == nil || out.Walk.State != models.StateDone {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		outcome:   out,
		createdAt: c.now(),
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// evictExpired drops entries older than the TTL.
func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

// cleanupLoop evicts expired entries every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.evictExpired()
	}
}
