package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/jellydator/ttlcache/v3"
)

var (
	ErrCacheEnded  = errors.New("cache ended")
	ErrLoaderPanic = errors.New("loader panicked")
)

type ExpiryMode int

const (
	// ExpireAfterWrite evicts an entry a fixed duration after it was loaded
	ExpireAfterWrite ExpiryMode = iota
	// ExpireAfterAccess evicts an entry a fixed duration after it was last read
	ExpireAfterAccess
)

func (m ExpiryMode) String() string {
	switch m {
	case ExpireAfterWrite:
		return "write"
	case ExpireAfterAccess:
		return "access"
	}
	return fmt.Sprintf("ExpiryMode(%d)", int(m))
}

type Policy struct {
	Mode     ExpiryMode
	Duration time.Duration
}

// Loader fetches the value for a key on a cache miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

type Option func(*options)

type options struct {
	loadTimeout time.Duration
}

// WithLoadTimeout bounds every loader call. Loads are detached from the
// caller's context, so without this a hanging upstream holds the key forever.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.loadTimeout = timeout
	}
}

type call[V any] struct {
	done chan struct{}

	// Written once before done is closed
	value V
	err   error

	// Set by Invalidate while the load is in flight. Guarded by LoadingCache.mu
	discarded bool
}

// LoadingCache is a key/value cache that loads missing values asynchronously
// with at most one load in flight per key.
type LoadingCache[K comparable, V any] struct {
	name        string
	loader      Loader[K, V]
	policy      Policy
	loadTimeout time.Duration

	store *ttlcache.Cache[K, V]

	mu       sync.Mutex
	inFlight map[K]*call[V]
	ended    bool
	stopOnce sync.Once
}

func New[K comparable, V any](name string, loader Loader[K, V], policy Policy, opts ...Option) *LoadingCache[K, V] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := []ttlcache.Option[K, V]{
		ttlcache.WithTTL[K, V](policy.Duration),
	}
	if policy.Mode == ExpireAfterWrite {
		storeOpts = append(storeOpts, ttlcache.WithDisableTouchOnHit[K, V]())
	}
	store := ttlcache.New[K, V](storeOpts...)
	store.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[K, V]) {
		if reason == ttlcache.EvictionReasonExpired {
			recordEviction(ctx, name)
		}
	})
	go store.Start()

	return &LoadingCache[K, V]{
		name:        name,
		loader:      loader,
		policy:      policy,
		loadTimeout: o.loadTimeout,
		store:       store,
		inFlight:    make(map[K]*call[V]),
	}
}

func (c *LoadingCache[K, V]) Name() string {
	return c.name
}

func (c *LoadingCache[K, V]) Policy() Policy {
	return c.policy
}

// Get returns the cached value for key, loading it if needed. Concurrent
// callers for the same key share one load. Cancelling ctx stops this caller's
// wait but not the load itself.
func (c *LoadingCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	var empty V
	logger := logging.FromContext(ctx)

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return empty, fmt.Errorf("%w: %s", ErrCacheEnded, c.name)
	}

	// ttlcache never returns expired items, and touches the item on hit
	// unless the cache was created with touch on hit disabled
	if item := c.store.Get(key); item != nil {
		c.mu.Unlock()
		recordHit(ctx, c.name)
		logger.DebugContext(ctx, "Getting cache entry", "cache", c.name, "result", "hit")
		return item.Value(), nil
	}

	cl, waiting := c.inFlight[key]
	if !waiting {
		cl = &call[V]{done: make(chan struct{})}
		c.inFlight[key] = cl
		go c.load(ctx, key, cl)
	}
	c.mu.Unlock()

	recordMiss(ctx, c.name)
	if waiting {
		logger.DebugContext(ctx, "Waiting for cache", "cache", c.name)
	} else {
		logger.DebugContext(ctx, "Getting cache entry", "cache", c.name, "result", "miss")
	}

	select {
	case <-cl.done:
		if cl.err != nil {
			return empty, cl.err
		}
		return cl.value, nil
	case <-ctx.Done():
		return empty, ctx.Err()
	}
}

func (c *LoadingCache[K, V]) load(ctx context.Context, key K, cl *call[V]) {
	loadCtx := context.WithoutCancel(ctx)
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, c.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	value, err := c.callLoader(loadCtx, key)
	recordLoad(ctx, c.name, time.Since(start), err)

	c.mu.Lock()
	if current, ok := c.inFlight[key]; ok && current == cl {
		delete(c.inFlight, key)
	}
	if err != nil {
		cl.err = fmt.Errorf("failed to load cache entry: %w", err)
	} else {
		cl.value = value
		if !cl.discarded && !c.ended {
			c.store.Set(key, value, ttlcache.DefaultTTL)
		}
	}
	c.mu.Unlock()

	close(cl.done)
}

func (c *LoadingCache[K, V]) callLoader(ctx context.Context, key K) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}
	}()
	return c.loader(ctx, key)
}

// Has reports whether a non-expired value is cached for key. It never loads
// and does not count as an access.
func (c *LoadingCache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return false
	}
	return c.store.Get(key, ttlcache.WithDisableTouchOnHit[K, V]()) != nil
}

// Invalidate removes key. A load in flight for key still answers its waiters
// but its result is not stored.
func (c *LoadingCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Delete(key)
	if cl, ok := c.inFlight[key]; ok {
		cl.discarded = true
		delete(c.inFlight, key)
	}
}

func (c *LoadingCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.DeleteAll()
	for key, cl := range c.inFlight {
		cl.discarded = true
		delete(c.inFlight, key)
	}
}

// End releases all entries and stops the expiry sweep. The cache cannot be
// used afterwards.
func (c *LoadingCache[K, V]) End() {
	c.mu.Lock()
	c.ended = true
	c.store.DeleteAll()
	for key, cl := range c.inFlight {
		cl.discarded = true
		delete(c.inFlight, key)
	}
	c.mu.Unlock()

	c.stopOnce.Do(c.store.Stop)
}

// Len counts cached values, excluding loads in flight.
func (c *LoadingCache[K, V]) Len() int {
	return c.store.Len()
}
