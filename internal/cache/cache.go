// internal/cache/cache.go
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one cached proxied response: the upstream content type plus the
// raw body bytes.
type Entry struct {
	ContentType string
	Body        []byte
}

// Cache defines the interface for response caching implementations.
type Cache interface {
	// Get retrieves a cached entry by key.
	Get(key string) (*Entry, bool)

	// Set stores an entry with the specified TTL, evicting older entries when
	// the size bound is exceeded.
	Set(key string, entry *Entry, ttl time.Duration) error

	// Delete removes a cached entry by key. Absent keys are not an error.
	Delete(key string) error

	// Close stops background goroutines and releases the cache.
	Close()
}

type cacheEntry struct {
	entry     *Entry
	expiresAt time.Time
	key       string
}

// MemoryCache implements in-memory caching with LRU eviction, used to keep
// repeatedly proxied listing images from hammering the image host.
type MemoryCache struct {
	store   map[string]*list.Element
	lruList *list.List
	mu      sync.Mutex
	maxSize int64
	size    int64
	cancel  context.CancelFunc
}

// NewMemoryCache creates a new in-memory cache with LRU eviction
func NewMemoryCache(maxSizeBytes int64) *MemoryCache {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 100 * 1024 * 1024 // Default: 100MB
	}

	ctx, cancel := context.WithCancel(context.Background())

	mc := &MemoryCache{
		store:   make(map[string]*list.Element),
		lruList: list.New(),
		maxSize: maxSizeBytes,
		cancel:  cancel,
	}

	go mc.cleanupExpired(ctx)

	return mc
}

// Get retrieves a cached entry, moving it to the front of the LRU list.
func (mc *MemoryCache) Get(key string) (*Entry, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	element, exists := mc.store[key]
	if !exists {
		return nil, false
	}

	ce := element.Value.(*cacheEntry)
	if time.Now().After(ce.expiresAt) {
		mc.remove(element)
		return nil, false
	}

	mc.lruList.MoveToFront(element)
	return ce.entry, true
}

// Set stores an entry with TTL, evicting LRU entries to stay under the size bound.
func (mc *MemoryCache) Set(key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	size := entrySize(entry)

	if element, exists := mc.store[key]; exists {
		mc.remove(element)
	}

	for mc.size+size > mc.maxSize && mc.lruList.Len() > 0 {
		mc.remove(mc.lruList.Back())
	}

	ce := &cacheEntry{entry: entry, expiresAt: time.Now().Add(ttl), key: key}
	mc.store[key] = mc.lruList.PushFront(ce)
	mc.size += size

	log.Debug().Str("key", key).Int64("size_bytes", size).Dur("ttl", ttl).Msg("Cached entry")
	return nil
}

// Delete removes a cached entry
func (mc *MemoryCache) Delete(key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if element, exists := mc.store[key]; exists {
		mc.remove(element)
	}
	return nil
}

// Close stops the background cleanup goroutine
func (mc *MemoryCache) Close() {
	mc.cancel()
}

// remove deletes an element from the list and map (must be called with lock held)
func (mc *MemoryCache) remove(element *list.Element) {
	ce := element.Value.(*cacheEntry)
	mc.lruList.Remove(element)
	delete(mc.store, ce.key)
	mc.size -= entrySize(ce.entry)
}

// cleanupExpired periodically removes expired entries
func (mc *MemoryCache) cleanupExpired(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.mu.Lock()
			now := time.Now()
			var next *list.Element
			for element := mc.lruList.Front(); element != nil; element = next {
				next = element.Next()
				if now.After(element.Value.(*cacheEntry).expiresAt) {
					mc.remove(element)
				}
			}
			mc.mu.Unlock()
		}
	}
}

func entrySize(e *Entry) int64 {
	return int64(len(e.Body)+len(e.ContentType)) + 128
}
