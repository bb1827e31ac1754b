package citation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boltdb/bolt"

	"github.com/helixir/reference-service/internal/dedup"
	"github.com/helixir/reference-service/internal/domain"
)

// Lookup is the cached outcome of one (author, title) search.
type Lookup struct {
	// Work is the matched work, or nil when nothing matched.
	Work *domain.VerifiedWork `json:"work,omitempty"`
	// TitleMismatch is set when Work shares the cited author but none of the
	// candidates carried the cited title.
	TitleMismatch bool      `json:"title_mismatch,omitempty"`
	CachedAt      time.Time `json:"cached_at"`
}

// Found reports whether the lookup matched a work.
func (l Lookup) Found() bool {
	return l.Work != nil && !l.TitleMismatch
}

// Cache stores lookups between citations of the same work. Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(key string) (Lookup, bool, error)
	Put(key string, l Lookup) error
}

// CacheKey builds the cache key for an author surname and title.
func CacheKey(author, title string) string {
	return strings.ToLower(strings.TrimSpace(author)) + "|" + dedup.NormalizeTitle(title)
}

// MemoryCache is an unbounded in-memory Cache. Engines without WithCache use
// a fresh one for each VerifyAll call.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Lookup
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Lookup)}
}

func (c *MemoryCache) Get(key string) (Lookup, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.entries[key]
	return l, ok, nil
}

func (c *MemoryCache) Put(key string, l Lookup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = l
	return nil
}

// Len returns the number of cached lookups.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var lookupsBucket = []byte("lookups")

// BoltCache persists lookups in a bolt file so repeated verification of the
// same manuscript does not query the bibliographic APIs again.
type BoltCache struct {
	store *bolt.DB
	ttl   time.Duration
	now   func() time.Time
}

// OpenBoltCache opens or creates the cache file at path. Entries older than
// ttl are treated as misses; a zero ttl keeps them forever.
func OpenBoltCache(path string, ttl time.Duration) (*BoltCache, error) {
	store, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening verification cache %s: %w", path, err)
	}

	err = store.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(lookupsBucket); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &BoltCache{store: store, ttl: ttl, now: time.Now}, nil
}

func (c *BoltCache) Get(key string) (Lookup, bool, error) {
	var (
		l     Lookup
		found bool
	)
	err := c.store.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(lookupsBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("decoding cached lookup %q: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return Lookup{}, false, err
	}
	if c.ttl > 0 && c.now().Sub(l.CachedAt) > c.ttl {
		return Lookup{}, false, nil
	}
	return l, true, nil
}

func (c *BoltCache) Put(key string, l Lookup) error {
	if l.CachedAt.IsZero() {
		l.CachedAt = c.now().UTC()
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding lookup: %w", err)
	}
	return c.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(lookupsBucket).Put([]byte(key), data)
	})
}

// Close releases the cache file.
func (c *BoltCache) Close() error {
	return c.store.Close()
}
