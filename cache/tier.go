package cache

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogpu/stage/internal/logging"
)

// Default configuration constants.
const (
	// DefaultMaxBytes is the default tier budget (64 MB).
	DefaultMaxBytes = 64 << 20

	// proactiveTarget is the fraction of MaxBytes a tier evicts down to
	// when an insertion would overflow.
	proactiveTarget = 0.9
)

// Config configures a Tier.
type Config[K comparable, V any] struct {
	// Name identifies the tier in logs, stats and metrics.
	Name string

	// MaxBytes is the byte budget. Zero means DefaultMaxBytes.
	MaxBytes int64

	// MaxEntries caps the entry count. Zero means unlimited.
	MaxEntries int

	// Policy selects eviction victims.
	Policy Policy

	// DefaultTTL applies to Set. Zero means entries never expire.
	DefaultTTL time.Duration

	// SizeOf measures a value in bytes. Nil counts every value as 1.
	SizeOf func(V) int64

	// OnEvict is called, without the tier lock held, for every entry
	// removed by eviction, expiry or Clear.
	OnEvict func(key K, value V, reason Reason)

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	// Logger receives diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Stats is a snapshot of tier counters.
type Stats struct {
	Name        string
	Policy      Policy
	Entries     int
	Bytes       int64
	MaxBytes    int64
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Rejected    uint64
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// entry is a cached value with its bookkeeping.
type entry[K comparable, V any] struct {
	key        K
	value      V
	size       int64
	created    time.Time
	lastAccess time.Time
	expires    time.Time
	accesses   uint64
	seq        uint64

	prev, next *entry[K, V]
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// evicted is an entry removed under the lock, reported after unlocking.
type evicted[K comparable, V any] struct {
	key    K
	value  V
	reason Reason
}

// Tier is a byte-budgeted cache with a pluggable eviction policy.
type Tier[K comparable, V any] struct {
	mu      sync.Mutex
	cfg     Config[K, V]
	log     *slog.Logger
	entries map[K]*entry[K, V]
	recency recencyList[K, V]
	bytes   int64
	seq     uint64

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
	rejected    uint64
}

// New creates an empty Tier.
func New[K comparable, V any](cfg Config[K, V]) *Tier[K, V] {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}
	if cfg.SizeOf == nil {
		cfg.SizeOf = func(V) int64 { return 1 }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tier[K, V]{
		cfg:     cfg,
		log:     logging.Component(cfg.Logger, "cache").With(slog.String("tier", cfg.Name)),
		entries: make(map[K]*entry[K, V]),
	}
}

// Name returns the tier name.
func (t *Tier[K, V]) Name() string {
	return t.cfg.Name
}

// Set stores value under key with the default TTL and reports whether it
// was stored. A value larger than MaxBytes is rejected.
func (t *Tier[K, V]) Set(key K, value V) bool {
	return t.SetWithTTL(key, value, t.cfg.DefaultTTL)
}

// SetWithTTL stores value under key, expiring after ttl. A zero ttl never
// expires.
func (t *Tier[K, V]) SetWithTTL(key K, value V, ttl time.Duration) bool {
	size := t.cfg.SizeOf(value)
	if size < 0 {
		size = 0
	}

	t.mu.Lock()
	if size > t.cfg.MaxBytes {
		t.rejected++
		t.mu.Unlock()
		t.log.Debug("value exceeds tier budget",
			slog.Int64("size", size),
			slog.Int64("max_bytes", t.cfg.MaxBytes))
		return false
	}

	now := t.cfg.Now()
	if old, ok := t.entries[key]; ok {
		t.unlinkLocked(old)
	}

	var out []evicted[K, V]
	if t.bytes+size > t.cfg.MaxBytes {
		target := int64(math.Floor(float64(t.cfg.MaxBytes) * proactiveTarget))
		for len(t.entries) > 0 && t.bytes+size > target {
			out = t.evictOneLocked(now, ReasonCapacity, out)
		}
	}
	if t.cfg.MaxEntries > 0 {
		for len(t.entries) >= t.cfg.MaxEntries {
			out = t.evictOneLocked(now, ReasonCapacity, out)
		}
	}

	t.seq++
	e := &entry[K, V]{
		key:        key,
		value:      value,
		size:       size,
		created:    now,
		lastAccess: now,
		seq:        t.seq,
	}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	t.entries[key] = e
	t.recency.pushFront(e)
	t.bytes += size
	t.mu.Unlock()

	t.notify(out)
	return true
}

// Get returns the value for key. An absent or expired key counts a miss;
// an expired entry is removed.
func (t *Tier[K, V]) Get(key K) (V, bool) {
	t.mu.Lock()
	now := t.cfg.Now()
	e, ok := t.entries[key]
	if !ok {
		t.misses++
		t.mu.Unlock()
		var zero V
		return zero, false
	}
	if e.expired(now) {
		t.misses++
		t.expirations++
		t.unlinkLocked(e)
		t.mu.Unlock()
		t.notify([]evicted[K, V]{{e.key, e.value, ReasonExpired}})
		var zero V
		return zero, false
	}

	t.hits++
	e.accesses++
	e.lastAccess = now
	t.recency.moveToFront(e)
	v := e.value
	t.mu.Unlock()
	return v, true
}

// Peek returns the value for key without touching recency, frequency or
// the hit counters.
func (t *Tier[K, V]) Peek(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok || e.expired(t.cfg.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key and reports whether it was present.
func (t *Tier[K, V]) Delete(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if ok {
		t.unlinkLocked(e)
	}
	return ok
}

// Clear removes every entry and returns how many were removed.
func (t *Tier[K, V]) Clear() int {
	t.mu.Lock()
	out := make([]evicted[K, V], 0, len(t.entries))
	if t.cfg.OnEvict != nil {
		for _, e := range t.entries {
			out = append(out, evicted[K, V]{e.key, e.value, ReasonCleared})
		}
	}
	n := len(t.entries)
	t.entries = make(map[K]*entry[K, V])
	t.recency.reset()
	t.bytes = 0
	t.evictions += uint64(n)
	t.mu.Unlock()

	t.notify(out)
	return n
}

// EvictFraction evicts ceil(f * Len) entries by policy and returns the
// number evicted. f is clamped to [0, 1].
func (t *Tier[K, V]) EvictFraction(f float64) int {
	f = math.Max(0, math.Min(1, f))

	t.mu.Lock()
	n := int(math.Ceil(f * float64(len(t.entries))))
	out := make([]evicted[K, V], 0, n)
	now := t.cfg.Now()
	for range n {
		out = t.evictOneLocked(now, ReasonPressure, out)
	}
	t.mu.Unlock()

	t.notify(out)
	return len(out)
}

// PurgeExpired removes every expired entry and returns how many it removed.
func (t *Tier[K, V]) PurgeExpired() int {
	t.mu.Lock()
	now := t.cfg.Now()
	var out []evicted[K, V]
	for _, e := range t.entries {
		if e.expired(now) {
			t.unlinkLocked(e)
			t.expirations++
			out = append(out, evicted[K, V]{e.key, e.value, ReasonExpired})
		}
	}
	t.mu.Unlock()

	t.notify(out)
	return len(out)
}

// Len returns the number of entries, including expired ones not yet purged.
func (t *Tier[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Bytes returns the total measured size of the entries.
func (t *Tier[K, V]) Bytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

// MaxBytes returns the byte budget.
func (t *Tier[K, V]) MaxBytes() int64 {
	return t.cfg.MaxBytes
}

// Stats returns a snapshot of the tier counters.
func (t *Tier[K, V]) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		Name:        t.cfg.Name,
		Policy:      t.cfg.Policy,
		Entries:     len(t.entries),
		Bytes:       t.bytes,
		MaxBytes:    t.cfg.MaxBytes,
		Hits:        t.hits,
		Misses:      t.misses,
		Evictions:   t.evictions,
		Expirations: t.expirations,
		Rejected:    t.rejected,
	}
}

// unlinkLocked removes e from the index. Caller must hold t.mu.
func (t *Tier[K, V]) unlinkLocked(e *entry[K, V]) {
	delete(t.entries, e.key)
	t.recency.remove(e)
	t.bytes -= e.size
}

// evictOneLocked removes the policy victim and appends it to out.
// Caller must hold t.mu.
func (t *Tier[K, V]) evictOneLocked(now time.Time, reason Reason, out []evicted[K, V]) []evicted[K, V] {
	e := t.victimLocked(now)
	if e == nil {
		return out
	}
	if e.expired(now) {
		reason = ReasonExpired
		t.expirations++
	} else {
		t.evictions++
	}
	t.unlinkLocked(e)
	return append(out, evicted[K, V]{e.key, e.value, reason})
}

// victimLocked picks the next entry to evict. Caller must hold t.mu.
func (t *Tier[K, V]) victimLocked(now time.Time) *entry[K, V] {
	switch t.cfg.Policy {
	case LFU:
		var least *entry[K, V]
		// Walk from the LRU end so ties go to the least recently used.
		for e := t.recency.back(); e != nil; e = e.prev {
			if least == nil || e.accesses < least.accesses {
				least = e
			}
		}
		return least

	case FIFO:
		var oldest *entry[K, V]
		for _, e := range t.entries {
			if oldest == nil || e.seq < oldest.seq {
				oldest = e
			}
		}
		return oldest

	case TTLFirst:
		var first *entry[K, V]
		for _, e := range t.entries {
			if e.expired(now) && (first == nil || e.expires.Before(first.expires)) {
				first = e
			}
		}
		if first != nil {
			return first
		}
	}
	return t.recency.back()
}

// notify runs OnEvict for out without the lock held.
func (t *Tier[K, V]) notify(out []evicted[K, V]) {
	if t.cfg.OnEvict == nil {
		return
	}
	for _, ev := range out {
		t.cfg.OnEvict(ev.key, ev.value, ev.reason)
	}
}
