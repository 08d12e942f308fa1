// Package registry provides the concurrency-safe map from a correlation key
// (patient id or session id) to a live machine instance. Creation is lazy and
// idempotent; destruction is idempotent and runs the entry's stop hook exactly
// once so pending timers and broadcast channels are always reclaimed. Locking
// is sharded by key so independent patients never contend.
package registry

import (
	"hash/fnv"
	"sync"
)

const shardCount = 16

// StopFunc releases everything an entry owns: debounce timers, broadcaster,
// observer subscriptions. It runs at most once per entry lifetime.
type StopFunc func()

// Factory builds the value for a key on first access, together with its stop
// hook. A nil StopFunc is allowed.
type Factory[T any] func(key string) (T, StopFunc)

type entry[T any] struct {
	value T
	stop  StopFunc
	once  sync.Once
}

func (e *entry[T]) runStop() {
	e.once.Do(func() {
		if e.stop != nil {
			e.stop()
		}
	})
}

type shard[T any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]
}

// Registry maps keys to live values. The zero value is not usable; construct
// with New.
type Registry[T any] struct {
	shards  [shardCount]shard[T]
	factory Factory[T]
}

// New creates a registry whose entries are built by factory.
func New[T any](factory Factory[T]) *Registry[T] {
	r := &Registry[T]{factory: factory}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry[T])
	}
	return r
}

func (r *Registry[T]) shardFor(key string) *shard[T] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &r.shards[h.Sum32()%shardCount]
}

// GetOrCreate returns the value for key, creating it on first access. The
// second result reports whether this call created the entry. Concurrent calls
// for the same key observe exactly one creation.
func (r *Registry[T]) GetOrCreate(key string) (T, bool) {
	s := r.shardFor(key)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e.value, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.value, false
	}
	value, stop := r.factory(key)
	s.entries[key] = &entry[T]{value: value, stop: stop}
	return value, true
}

// Get returns the value for key without creating it.
func (r *Registry[T]) Get(key string) (T, bool) {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Destroy removes the entry for key and runs its stop hook. Returns true if
// an entry existed. A second Destroy for the same key is a no-op, and a later
// GetOrCreate builds a fresh value with default state.
func (r *Registry[T]) Destroy(key string) bool {
	s := r.shardFor(key)

	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	// Run the hook outside the shard lock: stop hooks may close broadcasters
	// whose subscribers are re-entering the registry.
	e.runStop()
	return true
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	n := 0
	for i := range r.shards {
		r.shards[i].mu.RLock()
		n += len(r.shards[i].entries)
		r.shards[i].mu.RUnlock()
	}
	return n
}

// Range calls fn for each live entry until fn returns false. The snapshot of
// keys is taken per shard; fn runs without any registry lock held.
func (r *Registry[T]) Range(fn func(key string, value T) bool) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		pairs := make(map[string]T, len(s.entries))
		for k, e := range s.entries {
			pairs[k] = e.value
		}
		s.mu.RUnlock()
		for k, v := range pairs {
			if !fn(k, v) {
				return
			}
		}
	}
}

// DestroyAll tears down every entry. Used on shutdown.
func (r *Registry[T]) DestroyAll() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		entries := s.entries
		s.entries = make(map[string]*entry[T])
		s.mu.Unlock()
		for _, e := range entries {
			e.runStop()
		}
	}
}
