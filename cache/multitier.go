package cache

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// MultiTier composes tiers ordered fastest first. A hit in a slower tier
// promotes the value into every faster tier.
type MultiTier[K comparable, V any] struct {
	tiers      []*Tier[K, V]
	loads      singleflight.Group
	keyOf      func(K) string
	promotions atomic.Uint64
	loadCount  atomic.Uint64
}

// NewMultiTier composes tiers, fastest first. It panics without tiers.
func NewMultiTier[K comparable, V any](tiers ...*Tier[K, V]) *MultiTier[K, V] {
	if len(tiers) == 0 {
		panic("cache: NewMultiTier needs at least one tier")
	}
	return &MultiTier[K, V]{tiers: tiers, keyOf: flightKey[K]}
}

// SetKeyFunc sets the function naming a key for load deduplication. Distinct
// keys must map to distinct strings. The default handles strings directly
// and formats other keys with %#v, which is not unique for every type.
func (m *MultiTier[K, V]) SetKeyFunc(fn func(K) string) {
	if fn == nil {
		fn = flightKey[K]
	}
	m.keyOf = fn
}

func flightKey[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprintf("%T:%#v", key, key)
}

// Tiers returns the composed tiers, fastest first.
func (m *MultiTier[K, V]) Tiers() []*Tier[K, V] {
	return m.tiers
}

// Get looks key up tier by tier and promotes a slower-tier hit.
func (m *MultiTier[K, V]) Get(key K) (V, bool) {
	for i, t := range m.tiers {
		v, ok := t.Get(key)
		if !ok {
			continue
		}
		for _, faster := range m.tiers[:i] {
			faster.Set(key, v)
		}
		if i > 0 {
			m.promotions.Add(1)
		}
		return v, true
	}
	var zero V
	return zero, false
}

// Set writes value through to every tier and reports whether any tier
// accepted it.
func (m *MultiTier[K, V]) Set(key K, value V) bool {
	stored := false
	for _, t := range m.tiers {
		if t.Set(key, value) {
			stored = true
		}
	}
	return stored
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent misses for the same key share one load.
func (m *MultiTier[K, V]) GetOrLoad(key K, load func(K) (V, error)) (V, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}

	res, err, _ := m.loads.Do(m.keyOf(key), func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		v, err := load(key)
		if err != nil {
			return nil, err
		}
		m.loadCount.Add(1)
		m.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil //nolint:forcetypeassert // Do returns what the closure stored
}

// Delete removes key from every tier.
func (m *MultiTier[K, V]) Delete(key K) bool {
	found := false
	for _, t := range m.tiers {
		if t.Delete(key) {
			found = true
		}
	}
	return found
}

// Clear empties every tier and returns the number of entries removed.
func (m *MultiTier[K, V]) Clear() int {
	n := 0
	for _, t := range m.tiers {
		n += t.Clear()
	}
	return n
}

// Promotions returns the number of slower-tier hits promoted.
func (m *MultiTier[K, V]) Promotions() uint64 {
	return m.promotions.Load()
}

// Loads returns the number of successful GetOrLoad loads.
func (m *MultiTier[K, V]) Loads() uint64 {
	return m.loadCount.Load()
}

// Stats returns the stats of every tier, fastest first.
func (m *MultiTier[K, V]) Stats() []Stats {
	out := make([]Stats, len(m.tiers))
	for i, t := range m.tiers {
		out[i] = t.Stats()
	}
	return out
}
