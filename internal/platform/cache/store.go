package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/performlikemj/loanarmy-sub000/internal/platform/resilience"
)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Stats is a read-only snapshot of a store's contents. Expired rows are
// counted, not removed; eviction stays lazy.
type Stats struct {
	Total   int
	Expired int
	Active  int
}

// Store is a time-boxed cache keyed by string. Values expire ttl after the
// fetch that produced them; expiry is checked on read, there is no
// background sweep. Values must be treated as immutable once stored.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	flight  resilience.SingleFlight
	now     func() time.Time
}

func NewStore[V any](ttl time.Duration) *Store[V] {
	return &Store[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	now := s.now()
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if s.expired(e, now) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

func (s *Store[V]) Set(_ context.Context, key string, value V) {
	if key == "" {
		return
	}

	s.mu.Lock()
	s.entries[key] = entry[V]{
		value:     value,
		fetchedAt: s.now(),
	}
	s.mu.Unlock()
}

func (s *Store[V]) Invalidate(_ context.Context, key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *Store[V]) InvalidateAll(_ context.Context) {
	s.mu.Lock()
	s.entries = make(map[string]entry[V])
	s.mu.Unlock()
}

func (s *Store[V]) Stats(_ context.Context) Stats {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Stats{Total: len(s.entries)}
	for _, e := range s.entries {
		if s.expired(e, now) {
			out.Expired++
		} else {
			out.Active++
		}
	}
	return out
}

// GetOrLoad returns the cached value when still fresh, otherwise runs the
// loader once (concurrent callers for the same key share the load) and
// stores the result.
func (s *Store[V]) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, error) {
	var zero V
	if loader == nil {
		return zero, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := s.flight.Do(key, func() (any, error) {
		if cached, ok := s.Get(ctx, key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.Set(ctx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := value.(V)
	if !ok {
		return zero, fmt.Errorf("unexpected cached value type %T", value)
	}
	return typed, nil
}

func (s *Store[V]) expired(e entry[V], now time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	return now.Sub(e.fetchedAt) >= s.ttl
}
