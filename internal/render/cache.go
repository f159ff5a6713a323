package render

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// MapKey identifies one rendered image: the map and the pixel size it was
// drawn at. Options that resolve to the same pixels share an entry.
type MapKey struct {
	Map    string
	Width  int
	Height int
}

// KeyFor returns the cache key of m drawn with opts.
func KeyFor(m Map, opts Options) MapKey {
	w, h := opts.Pixels()
	return MapKey{Map: m.Name(), Width: w, Height: h}
}

func (k MapKey) String() string {
	return fmt.Sprintf("%s@%dx%d", k.Map, k.Width, k.Height)
}

// MapCache holds rendered PNGs in least-recently-used order. Entries older
// than the TTL are dropped on access; a zero TTL keeps them until evicted.
type MapCache struct {
	mu       sync.Mutex
	lru      *list.List // of *renderedMap, most recent at the front
	index    map[MapKey]*list.Element
	capacity int
	ttl      time.Duration
	hits     int64
	misses   int64

	inflight singleflight.Group
}

type renderedMap struct {
	key      MapKey
	png      []byte
	rendered time.Time
}

// CacheStats reports cache occupancy and hit counts.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewMapCache creates a cache holding up to capacity images for ttl.
func NewMapCache(capacity int, ttl time.Duration) *MapCache {
	return &MapCache{
		lru:      list.New(),
		index:    make(map[MapKey]*list.Element),
		capacity: max(capacity, 1),
		ttl:      ttl,
	}
}

// GetOrRender returns the image for key and whether it came from the cache.
// On a miss render runs once, however many callers are waiting on the same
// key, and its output is stored. Failed renders are not stored. Each call
// counts as exactly one hit or one miss.
func (c *MapCache) GetOrRender(key MapKey, render func() ([]byte, error)) ([]byte, bool, error) {
	c.mu.Lock()
	if png, ok := c.lookup(key); ok {
		c.hits++
		c.mu.Unlock()
		return png, true, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.inflight.Do(key.String(), func() (any, error) {
		png, err := render()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.store(key, png)
		c.mu.Unlock()
		return png, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Stats returns a snapshot of the cache counters.
func (c *MapCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{
		Entries:    c.lru.Len(),
		MaxEntries: c.capacity,
		Hits:       c.hits,
		Misses:     c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// lookup returns a live entry and marks it most recent. Caller holds mu.
func (c *MapCache) lookup(key MapKey) ([]byte, bool) {
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	rm := el.Value.(*renderedMap)
	if c.ttl > 0 && time.Since(rm.rendered) > c.ttl {
		c.lru.Remove(el)
		delete(c.index, key)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return rm.png, true
}

// store inserts or replaces an entry, evicting from the back. Caller holds mu.
func (c *MapCache) store(key MapKey, png []byte) {
	if el, ok := c.index[key]; ok {
		el.Value = &renderedMap{key: key, png: png, rendered: time.Now()}
		c.lru.MoveToFront(el)
		return
	}
	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.index, oldest.Value.(*renderedMap).key)
	}
	c.index[key] = c.lru.PushFront(&renderedMap{key: key, png: png, rendered: time.Now()})
}
