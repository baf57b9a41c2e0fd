package engine

import (
	"sync"
	"time"
)

// domainEntry stores the engine that last served a host.
type domainEntry struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers which engine last rendered each host's listings.
// Entries expire after the configured TTL and are pruned hourly.
type DomainMemory struct {
	store sync.Map // host (string) -> *domainEntry
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts
// its cleanup goroutine.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := newDomainMemory(ttl, time.Now)
	go dm.cleanupLoop()
	return dm
}

func newDomainMemory(ttl time.Duration, now func() time.Time) *DomainMemory {
	return &DomainMemory{
		ttl:  ttl,
		now:  now,
		done: make(chan struct{}),
	}
}

// Get returns the remembered engine name for host, or "" if unknown or expired.
func (dm *DomainMemory) Get(host string) string {
	val, ok := dm.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*domainEntry)
	if dm.now().After(entry.expiresAt) {
		dm.store.Delete(host)
		return ""
	}
	return entry.engineName
}

// Set records which engine served host.
func (dm *DomainMemory) Set(host, engineName string) {
	dm.store.Store(host, &domainEntry{
		engineName: engineName,
		expiresAt:  dm.now().Add(dm.ttl),
	})
}

// Delete forgets host, e.g. after the remembered engine failed.
func (dm *DomainMemory) Delete(host string) {
	dm.store.Delete(host)
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (dm *DomainMemory) Stop() {
	dm.once.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) prune() {
	now := dm.now()
	dm.store.Range(func(key, value any) bool {
		if now.After(value.(*domainEntry).expiresAt) {
			dm.store.Delete(key)
		}
		return true
	})
}

func (dm *DomainMemory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			dm.prune()
		}
	}
}
