package memory

import (
	"context"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/stage/internal/logging"
	"github.com/gogpu/stage/telemetry"
)

// Default monitor configuration.
const (
	// DefaultInterval is the sampling period.
	DefaultInterval = time.Second

	// DefaultMediumEvictFraction is evicted from every cache on entering Medium.
	DefaultMediumEvictFraction = 0.10

	// DefaultHighEvictFraction is evicted from every cache on entering High.
	DefaultHighEvictFraction = 0.25
)

// Evictable is a cache the monitor can shrink. *cache.Tier implements it.
type Evictable interface {
	Name() string
	EvictFraction(f float64) int
	Clear() int
	Len() int
	Bytes() int64
}

// Config configures a Monitor. Zero fields take defaults.
type Config struct {
	Interval            time.Duration
	Thresholds          Thresholds
	MediumEvictFraction float64
	HighEvictFraction   float64

	// GC is called after the caches are cleared at Critical.
	// Nil means debug.FreeOSMemory.
	GC func()

	// OnError receives the PressureError raised at Critical.
	OnError func(error)

	Now    func() time.Time
	Hub    *telemetry.Hub
	Logger *slog.Logger
}

// Stats is a snapshot of the monitor state.
type Stats struct {
	Used          uint64
	Total         uint64
	Limit         uint64
	Percentage    float64
	Pressure      Pressure
	Allocations   uint64
	Deallocations uint64

	Samples      uint64
	SampleErrors uint64
	Transitions  uint64
	Evicted      uint64
	Clears       uint64
	Caches       int
	LastSample   time.Time
}

// Monitor samples memory usage and evicts from registered caches.
//
// Monitor is safe for concurrent use.
type Monitor struct {
	sampler Sampler
	cfg     Config
	log     *slog.Logger

	// sampling serializes SampleNow so eviction actions never interleave.
	sampling sync.Mutex

	mu     sync.Mutex
	caches []*registration
	level  Pressure
	stats  Stats
	cancel context.CancelFunc
	done   chan struct{}
}

type registration struct {
	e Evictable
}

// NewMonitor creates a Monitor reading from sampler.
func NewMonitor(sampler Sampler, cfg Config) *Monitor {
	if sampler == nil {
		sampler = RuntimeSampler{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if !cfg.Thresholds.valid() {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.MediumEvictFraction <= 0 || cfg.MediumEvictFraction > 1 {
		cfg.MediumEvictFraction = DefaultMediumEvictFraction
	}
	if cfg.HighEvictFraction <= 0 || cfg.HighEvictFraction > 1 {
		cfg.HighEvictFraction = DefaultHighEvictFraction
	}
	if cfg.GC == nil {
		cfg.GC = debug.FreeOSMemory
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{
		sampler: sampler,
		cfg:     cfg,
		log:     logging.Component(cfg.Logger, "memory"),
	}
}

// Register adds e to the caches the monitor evicts from and returns a
// function that removes it again.
func (m *Monitor) Register(e Evictable) (unregister func()) {
	r := &registration{e: e}
	m.mu.Lock()
	m.caches = append(m.caches, r)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.caches = slices.DeleteFunc(m.caches, func(x *registration) bool { return x == r })
	}
}

// Start samples every Interval until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.loop(ctx, done)
	return nil
}

// Stop ends sampling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SampleNow(); err != nil {
				m.log.Warn("memory sample failed", slog.Any("error", err))
			}
		}
	}
}

// SampleNow takes one sample, updates the pressure level and runs the
// transition action, if any.
func (m *Monitor) SampleNow() (Stats, error) {
	m.sampling.Lock()
	defer m.sampling.Unlock()

	s, err := m.sampler.Sample()
	if err != nil {
		m.mu.Lock()
		m.stats.SampleErrors++
		st := m.snapshotLocked()
		m.mu.Unlock()
		return st, err
	}

	pct := s.Percentage()
	now := m.cfg.Now()

	m.mu.Lock()
	prev := m.level
	next := m.cfg.Thresholds.Classify(pct, prev)
	m.level = next
	m.stats.Used = s.Used
	m.stats.Total = s.Total
	m.stats.Limit = s.Limit
	m.stats.Percentage = pct
	m.stats.Allocations = s.Allocations
	m.stats.Deallocations = s.Deallocations
	m.stats.Samples++
	m.stats.LastSample = now
	if next != prev {
		m.stats.Transitions++
	}
	caches := make([]Evictable, len(m.caches))
	for i, r := range m.caches {
		caches[i] = r.e
	}
	m.mu.Unlock()

	if next != prev {
		m.log.Info("memory pressure changed",
			slog.String("from", prev.String()),
			slog.String("to", next.String()),
			slog.Float64("percent", pct))
		m.cfg.Hub.Publish(telemetry.Event{
			Kind:   telemetry.KindPressure,
			Time:   now,
			Source: "memory",
			Level:  next.String(),
			Value:  pct,
		})
		if next > prev {
			m.escalate(next, s, pct, caches, now)
		}
	}

	return m.Stats(), nil
}

func (m *Monitor) escalate(level Pressure, s Sample, pct float64, caches []Evictable, now time.Time) {
	switch level {
	case Medium:
		m.evict(caches, m.cfg.MediumEvictFraction, now)
	case High:
		m.evict(caches, m.cfg.HighEvictFraction, now)
	case Critical:
		cleared := m.clear(caches, now)
		m.cfg.GC()
		err := &PressureError{
			Severity:    SeverityFatal,
			Recoverable: true,
			Pressure:    level,
			Percentage:  pct,
			Used:        s.Used,
			Limit:       s.Limit,
			Cleared:     cleared,
		}
		m.log.Error("critical memory pressure", slog.Any("error", err))
		if m.cfg.OnError != nil {
			m.cfg.OnError(err)
		}
	}
}

func (m *Monitor) evict(caches []Evictable, f float64, now time.Time) int {
	total := 0
	for _, c := range caches {
		n := c.EvictFraction(f)
		total += n
		m.publishEviction(c.Name(), n, now)
	}
	m.mu.Lock()
	m.stats.Evicted += uint64(total)
	m.mu.Unlock()
	m.log.Debug("pressure eviction", slog.Float64("fraction", f), slog.Int("entries", total))
	return total
}

func (m *Monitor) clear(caches []Evictable, now time.Time) int {
	total := 0
	for _, c := range caches {
		n := c.Clear()
		total += n
		m.publishEviction(c.Name(), n, now)
	}
	m.mu.Lock()
	m.stats.Evicted += uint64(total)
	m.stats.Clears++
	m.mu.Unlock()
	return total
}

func (m *Monitor) publishEviction(name string, n int, now time.Time) {
	if n == 0 {
		return
	}
	m.cfg.Hub.Publish(telemetry.Event{
		Kind:   telemetry.KindEviction,
		Time:   now,
		Source: name,
		Value:  float64(n),
	})
}

// Pressure returns the current level.
func (m *Monitor) Pressure() Pressure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Stats returns a snapshot of the monitor state.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Stats {
	st := m.stats
	st.Pressure = m.level
	st.Caches = len(m.caches)
	return st
}
