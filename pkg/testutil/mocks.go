// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/datamigrations/internal/appconfig"
)

// MemoryStore is a generic in-memory store for testing.
type MemoryStore[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore[K comparable, V any]() *MemoryStore[K, V] {
	return &MemoryStore[K, V]{items: make(map[K]V)}
}

// Set stores an item.
func (s *MemoryStore[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Get retrieves an item.
func (s *MemoryStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Update runs fn with the current item under the write lock. fn returns the
// new value and whether to store it.
func (s *MemoryStore[K, V]) Update(key K, fn func(current V, exists bool) (V, bool, error)) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.items[key]
	next, store, err := fn(current, exists)
	if err != nil {
		return current, err
	}
	if store {
		s.items[key] = next
	}
	return next, nil
}

// Delete removes an item.
func (s *MemoryStore[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// All returns all items.
func (s *MemoryStore[K, V]) All() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[K]V, len(s.items))
	for k, v := range s.items {
		result[k] = v
	}
	return result
}

// Count returns the number of items.
func (s *MemoryStore[K, V]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

type settingKey struct {
	key   string
	label string
}

// MemoryConfigClient is an in-memory appconfig.Client with etags and a write
// counter.
type MemoryConfigClient struct {
	store   *MemoryStore[settingKey, appconfig.Setting]
	version atomic.Int64
	writes  atomic.Int64
	lists   atomic.Int64

	// Fail, when set, is consulted before every operation; a non-nil result is
	// returned as the operation's error.
	Fail func(op, key string) error
}

var _ appconfig.Client = (*MemoryConfigClient)(nil)

// NewMemoryConfigClient returns a client pre-populated with settings.
func NewMemoryConfigClient(settings ...appconfig.Setting) *MemoryConfigClient {
	c := &MemoryConfigClient{store: NewMemoryStore[settingKey, appconfig.Setting]()}
	for _, s := range settings {
		c.store.Set(settingKey{s.Key, s.Label}, c.stamp(s))
	}
	return c
}

// Writes returns how many successful Set, Add and Delete calls were made.
func (c *MemoryConfigClient) Writes() int64 {
	return c.writes.Load()
}

// Lists returns how many List calls were made.
func (c *MemoryConfigClient) Lists() int64 {
	return c.lists.Load()
}

// Len returns the number of stored settings.
func (c *MemoryConfigClient) Len() int {
	return c.store.Count()
}

func (c *MemoryConfigClient) stamp(s appconfig.Setting) appconfig.Setting {
	s.ETag = fmt.Sprintf("etag-%d", c.version.Add(1))
	s.LastModified = Now()
	return s
}

func (c *MemoryConfigClient) fail(op, key string) error {
	if c.Fail == nil {
		return nil
	}
	return c.Fail(op, key)
}

func (c *MemoryConfigClient) List(ctx context.Context, keyFilter, labelFilter string) iter.Seq2[appconfig.Setting, error] {
	c.lists.Add(1)
	return func(yield func(appconfig.Setting, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(appconfig.Setting{}, err)
			return
		}
		if err := c.fail("list", keyFilter); err != nil {
			yield(appconfig.Setting{}, err)
			return
		}
		var matched []appconfig.Setting
		for k, s := range c.store.All() {
			if appconfig.MatchFilter(keyFilter, k.key) && appconfig.MatchFilter(labelFilter, k.label) {
				matched = append(matched, s)
			}
		}
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].Key != matched[j].Key {
				return matched[i].Key < matched[j].Key
			}
			return matched[i].Label < matched[j].Label
		})
		for _, s := range matched {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func (c *MemoryConfigClient) Get(ctx context.Context, key, label string) (appconfig.Setting, error) {
	if err := c.fail("get", key); err != nil {
		return appconfig.Setting{}, err
	}
	s, ok := c.store.Get(settingKey{key, label})
	if !ok {
		return appconfig.Setting{}, fmt.Errorf("get %s: %w", key, appconfig.ErrNotFound)
	}
	return s, nil
}

func (c *MemoryConfigClient) Set(ctx context.Context, s appconfig.Setting, onlyIfUnchanged bool) (appconfig.Setting, error) {
	if err := c.fail("set", s.Key); err != nil {
		return appconfig.Setting{}, err
	}
	if err := appconfig.CheckConditional(s, onlyIfUnchanged); err != nil {
		return appconfig.Setting{}, err
	}
	stored, err := c.store.Update(settingKey{s.Key, s.Label}, func(current appconfig.Setting, exists bool) (appconfig.Setting, bool, error) {
		if onlyIfUnchanged && (!exists || current.ETag != s.ETag) {
			return current, false, fmt.Errorf("set %s: %w", s.Key, appconfig.ErrPreconditionFailed)
		}
		return c.stamp(s), true, nil
	})
	if err != nil {
		return appconfig.Setting{}, err
	}
	c.writes.Add(1)
	return stored, nil
}

func (c *MemoryConfigClient) Add(ctx context.Context, s appconfig.Setting) (appconfig.Setting, error) {
	if err := c.fail("add", s.Key); err != nil {
		return appconfig.Setting{}, err
	}
	stored, err := c.store.Update(settingKey{s.Key, s.Label}, func(current appconfig.Setting, exists bool) (appconfig.Setting, bool, error) {
		if exists {
			return current, false, fmt.Errorf("add %s: %w", s.Key, appconfig.ErrAlreadyExists)
		}
		return c.stamp(s), true, nil
	})
	if err != nil {
		return appconfig.Setting{}, err
	}
	c.writes.Add(1)
	return stored, nil
}

func (c *MemoryConfigClient) Delete(ctx context.Context, key, label string) error {
	if err := c.fail("delete", key); err != nil {
		return err
	}
	if c.store.Delete(settingKey{key, label}) {
		c.writes.Add(1)
	}
	return nil
}

// Now returns the current UTC time.
func Now() time.Time {
	return time.Now().UTC()
}
