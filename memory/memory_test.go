package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/stage/cache"
	"github.com/gogpu/stage/telemetry"
)

// scripted returns percentages of a 1000-byte limit in order, repeating the
// last one.
type scripted struct {
	mu   sync.Mutex
	pcts []float64
	err  error
}

func (s *scripted) Sample() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Sample{}, s.err
	}
	p := s.pcts[0]
	if len(s.pcts) > 1 {
		s.pcts = s.pcts[1:]
	}
	return Sample{Used: uint64(p * 10), Total: 1000, Limit: 1000}, nil
}

type fakeCache struct {
	name      string
	fractions []float64
	clears    int
	entries   int
}

func (f *fakeCache) Name() string { return f.name }
func (f *fakeCache) Len() int     { return f.entries }
func (f *fakeCache) Bytes() int64 { return int64(f.entries) }

func (f *fakeCache) EvictFraction(fr float64) int {
	f.fractions = append(f.fractions, fr)
	n := int(float64(f.entries) * fr)
	f.entries -= n
	return n
}

func (f *fakeCache) Clear() int {
	f.clears++
	n := f.entries
	f.entries = 0
	return n
}

func filledTier(t *testing.T, name string, n int) *cache.Tier[string, int] {
	t.Helper()
	tier := cache.New(cache.Config[string, int]{Name: name, MaxBytes: 1 << 20})
	for i := range n {
		require.True(t, tier.Set(fmt.Sprintf("k%d", i), i))
	}
	return tier
}

// =============================================================================
// Pressure classification
// =============================================================================

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		pct  float64
		prev Pressure
		want Pressure
	}{
		{10, Low, Low},
		{60, Low, Low},
		{60, Medium, Medium},
		{60, High, Medium},
		{49.9, High, Low},
		{70, Low, Medium},
		{85, Low, High},
		{95, Low, Critical},
		{99, Critical, Critical},
		{80, Critical, Medium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Classify(tt.pct, tt.prev), "Classify(%v, %v)", tt.pct, tt.prev)
	}
}

func TestPressureString(t *testing.T) {
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "critical", Critical.String())
	assert.Equal(t, "Pressure(9)", Pressure(9).String())
}

func TestSamplePercentage(t *testing.T) {
	assert.InDelta(t, 50.0, Sample{Used: 50, Total: 400, Limit: 100}.Percentage(), 1e-9)
	assert.InDelta(t, 25.0, Sample{Used: 100, Total: 400}.Percentage(), 1e-9)
	assert.Zero(t, Sample{Used: 100}.Percentage())
}

func TestNewMonitor_InvalidThresholdsFallBack(t *testing.T) {
	m := NewMonitor(&scripted{pcts: []float64{1}}, Config{Thresholds: Thresholds{Low: 90, Medium: 10}})
	assert.Equal(t, DefaultThresholds(), m.cfg.Thresholds)
}

// =============================================================================
// Transition-only eviction
// =============================================================================

func TestMonitor_EscalationScenario(t *testing.T) {
	sampler := &scripted{pcts: []float64{40, 50, 60, 70, 72, 75, 80, 85, 88, 90, 95, 96, 96}}
	fc := &fakeCache{name: "fake", entries: 1000}

	var reported []error
	gcCalls := 0
	hub := telemetry.NewHub(nil)
	var levels []string
	hub.Subscribe(func(e telemetry.Event) {
		if e.Kind == telemetry.KindPressure {
			levels = append(levels, e.Level)
		}
	})

	m := NewMonitor(sampler, Config{
		GC:      func() { gcCalls++ },
		OnError: func(err error) { reported = append(reported, err) },
		Hub:     hub,
	})
	m.Register(fc)

	for range 13 {
		_, err := m.SampleNow()
		require.NoError(t, err)
	}

	assert.Equal(t, []float64{0.10, 0.25}, fc.fractions, "eviction only at the 70% and 85% transitions")
	assert.Equal(t, 1, fc.clears, "one full clear at 95%")
	assert.Equal(t, 1, gcCalls)
	assert.Equal(t, []string{"medium", "high", "critical"}, levels)

	require.Len(t, reported, 1)
	var pe *PressureError
	require.ErrorAs(t, reported[0], &pe)
	assert.Equal(t, SeverityFatal, pe.Severity)
	assert.True(t, pe.Recoverable)
	assert.Equal(t, Critical, pe.Pressure)
	assert.Equal(t, 675, pe.Cleared, "1000 - 100 - 225")

	st := m.Stats()
	assert.Equal(t, Critical, st.Pressure)
	assert.Equal(t, uint64(13), st.Samples)
	assert.Equal(t, uint64(3), st.Transitions)
	assert.Equal(t, uint64(1000), st.Evicted)
	assert.Equal(t, uint64(1), st.Clears)
}

func TestMonitor_DeescalationDoesNotEvict(t *testing.T) {
	sampler := &scripted{pcts: []float64{86, 75, 60, 40, 72}}
	fc := &fakeCache{name: "fake", entries: 100}
	m := NewMonitor(sampler, Config{GC: func() {}})
	m.Register(fc)

	want := []Pressure{High, Medium, Medium, Low, Medium}
	for i, p := range want {
		_, err := m.SampleNow()
		require.NoError(t, err)
		assert.Equal(t, p, m.Pressure(), "sample %d", i)
	}
	assert.Equal(t, []float64{0.25, 0.10}, fc.fractions)
}

func TestMonitor_EvictsRealTiers(t *testing.T) {
	a := filledTier(t, "a", 100)
	b := filledTier(t, "b", 40)

	hub := telemetry.NewHub(nil)
	evicted := map[string]float64{}
	hub.Subscribe(func(e telemetry.Event) {
		if e.Kind == telemetry.KindEviction {
			evicted[e.Source] += e.Value
		}
	})

	m := NewMonitor(&scripted{pcts: []float64{71, 96}}, Config{GC: func() {}, Hub: hub})
	m.Register(a)
	m.Register(b)

	_, err := m.SampleNow()
	require.NoError(t, err)
	assert.Equal(t, 90, a.Len())
	assert.Equal(t, 36, b.Len())

	_, err = m.SampleNow()
	require.NoError(t, err)
	assert.Zero(t, a.Len())
	assert.Zero(t, b.Len())

	assert.Equal(t, 100.0, evicted["a"])
	assert.Equal(t, 40.0, evicted["b"])
}

func TestMonitor_Unregister(t *testing.T) {
	fc := &fakeCache{name: "fake", entries: 100}
	m := NewMonitor(&scripted{pcts: []float64{75}}, Config{})
	unregister := m.Register(fc)
	assert.Equal(t, 1, m.Stats().Caches)

	unregister()
	unregister()
	assert.Zero(t, m.Stats().Caches)

	_, err := m.SampleNow()
	require.NoError(t, err)
	assert.Empty(t, fc.fractions)
}

func TestMonitor_SampleError(t *testing.T) {
	boom := errors.New("boom")
	fc := &fakeCache{name: "fake", entries: 100}
	m := NewMonitor(&scripted{err: boom}, Config{})
	m.Register(fc)

	st, err := m.SampleNow()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), st.SampleErrors)
	assert.Equal(t, Low, st.Pressure)
	assert.Empty(t, fc.fractions)
}

// =============================================================================
// Background loop
// =============================================================================

func TestMonitor_StartStop(t *testing.T) {
	var calls atomic.Int64
	sampler := SamplerFunc(func() (Sample, error) {
		calls.Add(1)
		return Sample{Used: 10, Limit: 100}, nil
	})
	m := NewMonitor(sampler, Config{Interval: time.Millisecond})

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrRunning)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	m.Stop()

	n := calls.Load()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "no samples after Stop")

	m.Stop()
	require.NoError(t, m.Start(context.Background()), "restart after Stop")
	m.Stop()
}

func TestMonitor_ContextCancelEndsLoop(t *testing.T) {
	var calls atomic.Int64
	m := NewMonitor(SamplerFunc(func() (Sample, error) {
		calls.Add(1)
		return Sample{}, nil
	}), Config{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	m.Stop()
}

// =============================================================================
// Runtime sampler
// =============================================================================

func TestRuntimeSampler(t *testing.T) {
	s, err := RuntimeSampler{Limit: 1 << 40}.Sample()
	require.NoError(t, err)
	assert.NotZero(t, s.Used)
	assert.GreaterOrEqual(t, s.Total, s.Used)
	assert.NotZero(t, s.Limit)
	assert.GreaterOrEqual(t, s.Allocations, s.Deallocations)
}
