// Package loader implements request-scoped key batching. A Loader collects
// the keys resolvers register while the GraphQL executor walks a selection
// set, then resolves the whole set through a single fetch call when the
// first deferred thunk is forced. Every outcome, including absent keys and
// fetch failures, stays cached for the life of the loader.
package loader

import (
	"context"
	"sync"
)

// Thunk defers a loaded value until forced.
type Thunk[V any] func() (V, error)

// FetchFunc resolves a batch of keys in one round trip. Keys missing from
// the returned map are treated as absent, not as errors.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

type result[V any] struct {
	value V
	err   error
}

// Loader batches key lookups behind thunks. All state is guarded by mu; a
// fetch runs with mu held, so at most one batch is in flight per loader.
type Loader[K comparable, V any] struct {
	fetch FetchFunc[K, V]

	mu      sync.Mutex
	pending []K
	queued  map[K]struct{}
	cache   map[K]result[V]

	hits        int64
	misses      int64
	batches     int64
	keysFetched int64
}

// New returns a Loader that resolves batches through fetch.
func New[K comparable, V any](fetch FetchFunc[K, V]) *Loader[K, V] {
	return &Loader[K, V]{
		fetch:  fetch,
		queued: make(map[K]struct{}),
		cache:  make(map[K]result[V]),
	}
}

// Load registers key for the next batch and returns a thunk yielding its
// value. Load never fetches; the batch runs when the first unresolved thunk
// is forced, so every key registered up to that point shares one fetch.
// Duplicate keys collapse into a single batch entry.
func (l *Loader[K, V]) Load(ctx context.Context, key K) Thunk[V] {
	l.mu.Lock()
	if _, done := l.cache[key]; done {
		l.hits++
	} else if _, waiting := l.queued[key]; waiting {
		l.hits++
	} else {
		l.queued[key] = struct{}{}
		l.pending = append(l.pending, key)
		l.misses++
	}
	l.mu.Unlock()

	return func() (V, error) {
		return l.force(ctx, key)
	}
}

// force resolves key, draining every pending registration through one fetch
// call if key has not been resolved yet.
func (l *Loader[K, V]) force(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if res, ok := l.cache[key]; ok {
		return res.value, res.err
	}

	keys := l.pending
	l.pending = nil
	l.queued = make(map[K]struct{})

	// A thunk key is always either cached or pending, so an empty drain
	// never reaches the store.
	if len(keys) > 0 {
		l.batches++
		l.keysFetched += int64(len(keys))

		values, err := l.fetch(ctx, keys)
		if err != nil {
			for _, k := range keys {
				l.cache[k] = result[V]{err: err}
			}
		} else {
			for _, k := range keys {
				res := result[V]{}
				if v, ok := values[k]; ok {
					res.value = v
				}
				l.cache[k] = res
			}
		}
	}

	res := l.cache[key]
	return res.value, res.err
}

// Stats is a point-in-time snapshot of loader activity. CacheHits counts
// registrations that needed no new batch entry, CacheMisses counts first
// sightings, Batches counts fetch calls, and KeysFetched counts the keys
// those calls carried.
type Stats struct {
	CacheHits   int64
	CacheMisses int64
	Batches     int64
	KeysFetched int64
}

// QueriesSaved reports how many single-key round trips batching avoided.
func (s Stats) QueriesSaved() int64 {
	saved := s.KeysFetched - s.Batches
	if saved < 0 {
		return 0
	}
	return saved
}

// Stats returns a snapshot of the loader's counters.
func (l *Loader[K, V]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		CacheHits:   l.hits,
		CacheMisses: l.misses,
		Batches:     l.batches,
		KeysFetched: l.keysFetched,
	}
}
