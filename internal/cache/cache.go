// Package cache memoizes string-keyed lookups in process memory.
package cache

import (
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const DefaultTTL = time.Hour

// ErrLoadAborted is what callers waiting on a load see when that load
// panicked.
var ErrLoadAborted = errors.New("cache load aborted")

// Memo is a TTL-bound map whose loads are collapsed per key: concurrent
// GetOrLoad calls for the same key share one call to load. Failed loads are
// not remembered.
type Memo[V any] struct {
	items *gocache.Cache

	mu       sync.Mutex
	inflight map[string]*call[V]
}

type call[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func New[V any](ttl time.Duration) *Memo[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memo[V]{
		items:    gocache.New(ttl, ttl/2),
		inflight: make(map[string]*call[V]),
	}
}

func (m *Memo[V]) Get(key string) (V, bool) {
	if v, found := m.items.Get(key); found {
		if typed, ok := v.(V); ok {
			return typed, true
		}
	}
	var zero V
	return zero, false
}

func (m *Memo[V]) Set(key string, value V) {
	m.items.SetDefault(key, value)
}

// GetOrLoad returns the remembered value for key, or runs load once and
// remembers its result when it succeeds.
func (m *Memo[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}

	m.mu.Lock()
	if c, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		<-c.done
		return c.value, c.err
	}
	c := &call[V]{done: make(chan struct{})}
	m.inflight[key] = c
	m.mu.Unlock()

	completed := false
	defer func() {
		if !completed {
			c.err = ErrLoadAborted
		}
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
		close(c.done)
	}()

	c.value, c.err = load()
	completed = true
	if c.err == nil {
		m.Set(key, c.value)
	}
	return c.value, c.err
}

func (m *Memo[V]) Forget(key string) {
	m.items.Delete(key)
}

func (m *Memo[V]) Len() int {
	return m.items.ItemCount()
}

func (m *Memo[V]) Flush() {
	m.items.Flush()
}
