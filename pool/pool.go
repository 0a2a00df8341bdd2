// Package pool provides an elastic arena-style object pool for resettable
// value objects.
//
// A Pool pre-allocates instances, hands them out with Acquire and takes them
// back with Release. Released objects are reset before they are reused, so a
// caller never observes the state left behind by a previous user.
//
// Usage:
//
//	rects := pool.New(pool.Config[*geom.Rect]{
//		Name: "rect",
//		New:  func() *geom.Rect { return new(geom.Rect) },
//	})
//	r := rects.Acquire()
//	defer rects.Release(r)
//
// Thread safety: all methods are safe for concurrent use.
package pool

import (
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/stage/internal/logging"
)

// Default configuration constants.
const (
	// DefaultInitialSize is the number of instances created up front.
	DefaultInitialSize = 16

	// DefaultMaxSize bounds the free list.
	DefaultMaxSize = 1024

	// DefaultGrowthFactor sizes the batch created when the pool runs dry.
	DefaultGrowthFactor = 1.5

	// DefaultShrinkThreshold is the utilization under which the free list shrinks.
	DefaultShrinkThreshold = 0.25

	// growUtilization is the utilization above which an empty pool grows.
	growUtilization = 0.8
)

// Poolable is implemented by values that can be returned to a Pool.
// Reset must drop every reference to external data.
type Poolable interface {
	Reset()
}

// Config configures a Pool.
type Config[T any] struct {
	// Name identifies the pool in logs and stats.
	Name string

	// New constructs a fresh instance. Required.
	New func() T

	// Reset is an optional hook run after the object's own Reset on release.
	Reset func(T)

	// InitialSize is the number of instances pre-allocated and the floor
	// the free list never shrinks below.
	InitialSize int

	// MaxSize is the maximum free list length. Objects released while the
	// free list is full are discarded.
	MaxSize int

	// GrowthFactor controls elastic growth: a dry pool above 80% utilization
	// pre-allocates (GrowthFactor-1)*active instances.
	GrowthFactor float64

	// ShrinkThreshold is the utilization (active/total) below which the free
	// list is cut by 25%.
	ShrinkThreshold float64

	// Logger receives misuse warnings. Nil disables logging.
	Logger *slog.Logger
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Name      string
	Free      int
	Active    int
	Peak      int
	MaxSize   int
	Created   uint64
	Hits      uint64
	Misses    uint64
	Discarded uint64
	Foreign   uint64
	Grown     uint64
	Shrunk    uint64
}

// HitRate returns the fraction of acquisitions that found the free list
// non-empty.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Pool is an elastic free list of Poolable values.
//
// The active set doubles as each object's in-use flag: an object is in use
// exactly while it is a member of the active set.
type Pool[T interface {
	comparable
	Poolable
}] struct {
	mu     sync.Mutex
	cfg    Config[T]
	log    *slog.Logger
	free   []T
	active map[T]struct{}

	peak      int
	created   uint64
	hits      uint64
	misses    uint64
	discarded uint64
	foreign   uint64
	grown     uint64
	shrunk    uint64
}

// New creates a pool and pre-allocates InitialSize instances.
// Zero config values are replaced by the package defaults.
// New panics if cfg.New is nil.
func New[T interface {
	comparable
	Poolable
}](cfg Config[T]) *Pool[T] {
	if cfg.New == nil {
		panic("pool: Config.New is required")
	}
	if cfg.InitialSize <= 0 {
		cfg.InitialSize = DefaultInitialSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.InitialSize > cfg.MaxSize {
		cfg.InitialSize = cfg.MaxSize
	}
	if cfg.GrowthFactor <= 1 {
		cfg.GrowthFactor = DefaultGrowthFactor
	}
	if cfg.ShrinkThreshold <= 0 || cfg.ShrinkThreshold >= 1 {
		cfg.ShrinkThreshold = DefaultShrinkThreshold
	}

	p := &Pool[T]{
		cfg:    cfg,
		log:    logging.Component(cfg.Logger, "pool").With(slog.String("pool", cfg.Name)),
		free:   make([]T, 0, cfg.InitialSize),
		active: make(map[T]struct{}, cfg.InitialSize),
	}
	for range cfg.InitialSize {
		p.free = append(p.free, cfg.New())
		p.created++
	}
	return p
}

// Acquire returns an object from the free list, or a newly constructed one
// when the pool is dry. It never returns the zero value of T unless New does.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A dry free list is a miss even when growth refills it.
	dry := len(p.free) == 0
	if dry {
		p.growLocked()
	}

	var obj T
	if n := len(p.free); n > 0 {
		obj = p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
	} else {
		obj = p.cfg.New()
		p.created++
	}
	if dry {
		p.misses++
	} else {
		p.hits++
	}

	p.active[obj] = struct{}{}
	if len(p.active) > p.peak {
		p.peak = len(p.active)
	}
	return obj
}

// Release returns obj to the pool. Objects that were not acquired from this
// pool, or were already released, are ignored with a warning.
func (p *Pool[T]) Release(obj T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.releaseLocked(obj) {
		p.shrinkLocked()
	}
}

// ReleaseAll returns every active object to the pool.
func (p *Pool[T]) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for obj := range p.active {
		p.releaseLocked(obj)
	}
	p.shrinkLocked()
}

// InUse reports whether obj is currently acquired from this pool.
func (p *Pool[T]) InUse(obj T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[obj]
	return ok
}

// Trim drops free instances down to InitialSize.
func (p *Pool[T]) Trim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.truncateLocked(p.cfg.InitialSize)
}

// Len returns the free list length.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Active returns the number of acquired objects.
func (p *Pool[T]) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Name:      p.cfg.Name,
		Free:      len(p.free),
		Active:    len(p.active),
		Peak:      p.peak,
		MaxSize:   p.cfg.MaxSize,
		Created:   p.created,
		Hits:      p.hits,
		Misses:    p.misses,
		Discarded: p.discarded,
		Foreign:   p.foreign,
		Grown:     p.grown,
		Shrunk:    p.shrunk,
	}
}

// releaseLocked resets obj and files it back. Reports whether obj was active.
// Caller must hold p.mu.
func (p *Pool[T]) releaseLocked(obj T) bool {
	var zero T
	if obj == zero {
		return false
	}
	if _, ok := p.active[obj]; !ok {
		p.foreign++
		p.log.Warn("release of object not acquired from pool",
			slog.Uint64("foreign_releases", p.foreign))
		return false
	}
	delete(p.active, obj)

	obj.Reset()
	if p.cfg.Reset != nil {
		p.cfg.Reset(obj)
	}

	if len(p.free) < p.cfg.MaxSize {
		p.free = append(p.free, obj)
	} else {
		p.discarded++
	}
	return true
}

// growLocked pre-allocates a batch when the pool is dry and busy.
// Caller must hold p.mu.
func (p *Pool[T]) growLocked() {
	active := len(p.active)
	if active == 0 {
		return
	}
	total := active + len(p.free)
	if float64(active)/float64(total) <= growUtilization {
		return
	}

	n := int(math.Ceil((p.cfg.GrowthFactor - 1) * float64(active)))
	if room := p.cfg.MaxSize - total; n > room {
		n = room
	}
	if room := p.cfg.MaxSize - len(p.free); n > room {
		n = room
	}
	if n <= 0 {
		return
	}

	for range n {
		p.free = append(p.free, p.cfg.New())
	}
	p.created += uint64(n) //nolint:gosec // G115: n is positive
	p.grown++
	p.log.Debug("pool grown", slog.Int("added", n), slog.Int("active", active))
}

// shrinkLocked cuts the free list by 25% when utilization is low,
// never going under InitialSize. Caller must hold p.mu.
func (p *Pool[T]) shrinkLocked() {
	free := len(p.free)
	if free <= p.cfg.InitialSize {
		return
	}
	total := len(p.active) + free
	if float64(len(p.active))/float64(total) >= p.cfg.ShrinkThreshold {
		return
	}
	target := free - free/4
	if target < p.cfg.InitialSize {
		target = p.cfg.InitialSize
	}
	if target < free {
		p.truncateLocked(target)
		p.shrunk++
	}
}

// truncateLocked cuts the free list to n entries, clearing dropped slots.
// Caller must hold p.mu.
func (p *Pool[T]) truncateLocked(n int) {
	if n >= len(p.free) {
		return
	}
	var zero T
	for i := n; i < len(p.free); i++ {
		p.free[i] = zero
	}
	p.free = p.free[:n]
}
