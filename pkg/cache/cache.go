// Package cache provides a bounded, thread-safe LRU cache keyed by string.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/metric"
)

// EvictCallback is called outside the lock for every entry pushed out by
// a newer one.
type EvictCallback[V any] func(key string, value V)

type entry[V any] struct {
	key   string
	value V
}

// LRU evicts the least recently used entry once MaxSize is exceeded.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	metrics *cacheMetrics
	onEvict EvictCallback[V]
}

// Option configures an LRU.
type Option[V any] func(*LRU[V]) error

// WithMetrics registers hit, miss, eviction and size metrics under name.
func WithMetrics[V any](registry *metric.MetricsRegistry, name string) Option[V] {
	return func(c *LRU[V]) error {
		if registry == nil {
			return nil
		}
		m, err := newCacheMetrics(registry, name)
		if err != nil {
			return errors.WrapTransient(err, "cache", "WithMetrics", "metrics registration")
		}
		c.metrics = m
		return nil
	}
}

// WithEvictionCallback sets fn to run on eviction.
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(c *LRU[V]) error {
		c.onEvict = fn
		return nil
	}
}

// NewLRU creates a cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, opts ...Option[V]) (*LRU[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: max size %d", errors.ErrInvalidConfig, maxSize), "cache", "NewLRU", "validate size")
	}
	c := &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get returns the value for key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.metrics.miss()
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.metrics.hit()
	return el.Value.(*entry[V]).value, true
}

// Add stores value under key. It reports whether key was new; an existing
// entry is updated and refreshed.
func (c *LRU[V]) Add(key string, value V) bool {
	var evicted *entry[V]

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[V]).value = value
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return false
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
	if len(c.items) > c.maxSize {
		oldest := c.order.Back()
		evicted = oldest.Value.(*entry[V])
		c.order.Remove(oldest)
		delete(c.items, evicted.key)
		c.metrics.eviction()
	}
	c.metrics.size(len(c.items))
	c.mu.Unlock()

	if evicted != nil && c.onEvict != nil {
		c.onEvict(evicted.key, evicted.value)
	}
	return true
}

// Contains reports whether key is cached without touching its recency.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Remove deletes key and reports whether it was present.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	c.metrics.size(len(c.items))
	return true
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns keys from most to least recently used.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[V]).key)
	}
	return keys
}
