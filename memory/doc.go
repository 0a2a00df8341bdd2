// Package memory samples host memory usage, classifies it into pressure
// levels and evicts from registered caches when pressure rises.
//
// A Monitor acts only on level transitions, never on every sample, so a host
// that hovers at one level does not keep losing cache entries:
//
//	Medium    evict 10% of the entries of every cache
//	High      evict 25% of the entries of every cache
//	Critical  clear every cache, collect garbage, report a PressureError
//
// Falling back to a lower level never evicts. Pressure returns to Low only
// once usage drops below Thresholds.Low, which keeps a host oscillating
// around the Medium boundary at Medium.
//
// The monitor runs on its own goroutine and may evict while a frame is being
// painted. Callers of a cache treat a miss after eviction as a fallback.
package memory
