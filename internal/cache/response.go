package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

type responseEntry struct {
	key       string
	response  *engine.Response
	expiresAt time.Time
}

// ResponseCache is an LRU+TTL cache of engine.Response keyed by an opaque
// cache key, generalizing Memory's provider-response cache (same eviction
// algorithm, same container/list idiom) to the routing engine's generic
// Response shape so internal/processor can cache any leaf endpoint, not
// just chat completions.
type ResponseCache struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	items     map[string]*list.Element
	evictList *list.List
}

// NewResponseCache creates a ResponseCache with the given capacity and TTL.
func NewResponseCache(capacity int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached response for key, or false if missing/expired.
func (c *ResponseCache) Get(key string) (*engine.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*responseEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, false
	}
	c.evictList.MoveToFront(elem)
	return entry.response, true
}

// Set stores resp under key with the configured TTL, or ttlOverride when > 0.
func (c *ResponseCache) Set(key string, resp *engine.Response, ttlOverride time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}

	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		entry := elem.Value.(*responseEntry)
		entry.response = resp
		entry.expiresAt = time.Now().Add(ttl)
		return
	}

	if c.evictList.Len() >= c.capacity {
		c.removeOldest()
	}

	entry := &responseEntry{key: key, response: resp, expiresAt: time.Now().Add(ttl)}
	elem := c.evictList.PushFront(entry)
	c.items[key] = elem
}

func (c *ResponseCache) removeOldest() {
	if elem := c.evictList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *ResponseCache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	entry := elem.Value.(*responseEntry)
	delete(c.items, entry.key)
}

// Key derives a deterministic cache key from the leaf's identity and
// request payload, per the "simple" cache mode of SPEC_FULL.md §4.6 step 5.
func Key(virtualKey, endpoint string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(virtualKey))
	h.Write([]byte{0})
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
