// Package cache is the process-wide entity cache shared by the catalog
// services and the optimistic mutator.
//
// Every key has at most one in-flight read. Each write or cancellation bumps
// the key's version; a read that started at an older version is discarded when
// it completes, so a slow read can never land over a newer (optimistic) value.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrCanceled is returned by Fetch when its read was cancelled or superseded
// and the cache holds no value for the key.
var ErrCanceled = errors.New("cache read canceled")

// Key identifies one cached view, e.g. "solution:5" or "solutions:3".
type Key string

type entry struct {
	value     any
	has       bool
	stale     bool
	updatedAt time.Time
	version   uint64
	inflight  *read
}

type read struct {
	cancel context.CancelFunc
	done   chan struct{}
	value  any
	err    error
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache whose entries go stale after ttl. A ttl <= 0 disables
// age-based staleness.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[Key]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) fresh(e *entry) bool {
	if !e.has || e.stale {
		return false
	}
	return c.ttl <= 0 || c.now().Sub(e.updatedAt) < c.ttl
}

// Get returns the cached value regardless of freshness.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.has {
		return nil, false
	}
	return e.value, true
}

// Set writes value and supersedes any in-flight read of key.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(c.entry(key), value)
}

func (c *Cache) set(e *entry, value any) {
	e.value = value
	e.has = true
	e.stale = false
	e.updatedAt = c.now()
	e.version++
}

// Update replaces the value of key with fn(old). It does nothing and returns
// false when key holds no value. fn must not call back into the cache.
func (c *Cache) Update(key Key, fn func(old any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.has {
		return false
	}
	c.set(e, fn(e.value))
	return true
}

// Fetch returns the fresh cached value of key or loads it. Concurrent
// fetches of the same key share one load.
func (c *Cache) Fetch(ctx context.Context, key Key, load func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	e := c.entry(key)
	if c.fresh(e) {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	if r := e.inflight; r != nil {
		c.mu.Unlock()
		return wait(ctx, r)
	}

	readCtx, cancel := context.WithCancel(ctx)
	r := &read{cancel: cancel, done: make(chan struct{})}
	e.inflight = r
	version := e.version
	c.mu.Unlock()

	value, err := load(readCtx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(r.done)

	if e.inflight == r {
		e.inflight = nil
	}

	current := c.entries[key] == e && e.version == version
	switch {
	case current && err == nil:
		c.set(e, value)
		r.value = value
	case current:
		r.err = err
	case c.entries[key] == e && e.has:
		// Superseded by a newer write: readers observe the newer value.
		r.value = e.value
	default:
		r.err = ErrCanceled
	}
	return r.value, r.err
}

func wait(ctx context.Context, r *read) (any, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts in-flight reads of keys and waits for them to settle. Their
// results are discarded.
func (c *Cache) Cancel(ctx context.Context, keys ...Key) error {
	var pending []*read

	c.mu.Lock()
	for _, key := range keys {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		e.version++
		if e.inflight != nil {
			pending = append(pending, e.inflight)
			e.inflight = nil
		}
	}
	c.mu.Unlock()

	for _, r := range pending {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Invalidate marks every key starting with prefix as stale so the next Fetch
// reloads it. Cached values stay readable through Get.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if strings.HasPrefix(string(key), prefix) {
			e.stale = true
		}
	}
}

// MarkStale marks exactly keys as stale.
func (c *Cache) MarkStale(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if e, ok := c.entries[key]; ok {
			e.stale = true
		}
	}
}

// Clear drops every entry. In-flight reads finish without storing anything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.inflight != nil {
			e.inflight.cancel()
		}
	}
	c.entries = make(map[Key]*entry)
}

type snapshotValue struct {
	value any
	has   bool
}

// Snapshot is a verbatim copy of some cache entries taken by Snapshot.
type Snapshot map[Key]snapshotValue

// Has reports whether key held a value when the snapshot was taken.
func (s Snapshot) Has(key Key) bool {
	return s[key].has
}

// Snapshot captures the current values of keys.
func (c *Cache) Snapshot(keys ...Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(Snapshot, len(keys))
	for _, key := range keys {
		if e, ok := c.entries[key]; ok && e.has {
			snap[key] = snapshotValue{value: e.value, has: true}
			continue
		}
		snap[key] = snapshotValue{}
	}
	return snap
}

// Restore writes every snapshotted value back, removing keys that were empty.
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, sv := range snap {
		e := c.entry(key)
		if sv.has {
			c.set(e, sv.value)
			continue
		}
		e.value = nil
		e.has = false
		e.version++
	}
}

// GetAs is Get with a type assertion.
func GetAs[T any](c *Cache, key Key) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// FetchAs is Fetch for a typed loader.
func FetchAs[T any](ctx context.Context, c *Cache, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, ErrCanceled
	}
	return t, nil
}

// UpdateAs is Update for a typed updater. Values of another type are left
// untouched.
func UpdateAs[T any](c *Cache, key Key, fn func(old T) T) bool {
	return c.Update(key, func(old any) any {
		t, ok := old.(T)
		if !ok {
			return old
		}
		return fn(t)
	})
}
