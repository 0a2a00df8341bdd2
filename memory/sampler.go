package memory

import (
	"math"
	"runtime"
	"runtime/debug"
)

// DefaultRuntimeLimit is the limit RuntimeSampler reports when neither a
// runtime memory limit nor Limit is set (2 GB).
const DefaultRuntimeLimit = 2 << 30

// Sample is one reading from a Sampler. Sizes are in bytes.
type Sample struct {
	Used  uint64
	Total uint64
	Limit uint64

	// Cumulative allocation and deallocation counts, if the host tracks them.
	Allocations   uint64
	Deallocations uint64
}

// Percentage returns Used as a percentage of Limit, or of Total when no
// limit is known.
func (s Sample) Percentage() float64 {
	denom := s.Limit
	if denom == 0 {
		denom = s.Total
	}
	if denom == 0 {
		return 0
	}
	return float64(s.Used) / float64(denom) * 100
}

// Sampler reads host memory usage.
type Sampler interface {
	Sample() (Sample, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (Sample, error)

// Sample calls f.
func (f SamplerFunc) Sample() (Sample, error) { return f() }

// RuntimeSampler samples the Go heap.
//
// The limit is the runtime soft memory limit (GOMEMLIMIT) when one is set,
// otherwise Limit, otherwise DefaultRuntimeLimit.
type RuntimeSampler struct {
	Limit uint64
}

// Sample reads runtime.MemStats.
func (r RuntimeSampler) Sample() (Sample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return Sample{
		Used:          ms.HeapAlloc,
		Total:         ms.HeapSys,
		Limit:         r.limit(),
		Allocations:   ms.Mallocs,
		Deallocations: ms.Frees,
	}, nil
}

func (r RuntimeSampler) limit() uint64 {
	if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
		return uint64(l)
	}
	if r.Limit > 0 {
		return r.Limit
	}
	return DefaultRuntimeLimit
}
