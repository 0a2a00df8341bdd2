package cull

import (
	"sync"

	"github.com/kamstrup/intmap"

	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/scene"
)

// Default LOD thresholds.
const (
	// DefaultLowCoverage is the screen coverage under which an object is
	// drawn at LODLow.
	DefaultLowCoverage = 0.0005

	// DefaultHighCoverage is the screen coverage at or above which an
	// object is drawn at LODHigh, provided the scale allows it.
	DefaultHighCoverage = 0.01

	// DefaultHighScale is the minimum viewport scale for LODHigh.
	DefaultHighScale = 0.75
)

// Thresholds are the LOD decision boundaries.
type Thresholds struct {
	LowCoverage  float64
	HighCoverage float64
	HighScale    float64
}

// DefaultThresholds returns the default LOD thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowCoverage:  DefaultLowCoverage,
		HighCoverage: DefaultHighCoverage,
		HighScale:    DefaultHighScale,
	}
}

// Coverage returns the fraction of the viewport covered by the world
// rectangle r once projected to the screen.
func Coverage(r geom.Rect, vp scene.Viewport) float64 {
	area := vp.Area()
	if area <= 0 {
		return 0
	}
	s := vp.Scale
	if s <= 0 {
		s = 1
	}
	return r.Area() * s * s / area
}

// Classify picks a tier for r without caching.
func (th Thresholds) Classify(r geom.Rect, vp scene.Viewport) scene.LOD {
	cov := Coverage(r, vp)
	switch {
	case cov < th.LowCoverage:
		return scene.LODLow
	case cov >= th.HighCoverage && vp.Scale >= th.HighScale:
		return scene.LODHigh
	}
	return scene.LODMedium
}

// LODStats is a snapshot of selector counters.
type LODStats struct {
	Cached int
	Hits   uint64
	Misses uint64
	Resets uint64
}

// LODSelector caches the tier chosen for each object. The cache is reset
// whenever the viewport scale or size changes. It is safe for concurrent use.
type LODSelector struct {
	mu     sync.Mutex
	th     Thresholds
	vp     scene.Viewport
	cache  *intmap.Map[scene.ObjectID, scene.LOD]
	hits   uint64
	misses uint64
	resets uint64
}

// NewLODSelector creates a selector. Zero thresholds take their defaults.
func NewLODSelector(th Thresholds) *LODSelector {
	def := DefaultThresholds()
	if th.LowCoverage <= 0 {
		th.LowCoverage = def.LowCoverage
	}
	if th.HighCoverage <= 0 {
		th.HighCoverage = def.HighCoverage
	}
	if th.HighScale <= 0 {
		th.HighScale = def.HighScale
	}
	return &LODSelector{
		th:    th,
		vp:    scene.Viewport{Scale: 1},
		cache: intmap.New[scene.ObjectID, scene.LOD](memoCapacity),
	}
}

// Thresholds returns the selector thresholds.
func (s *LODSelector) Thresholds() Thresholds {
	return s.th
}

// SetViewport updates the viewport. Panning keeps the cache; zooming or
// resizing resets it.
func (s *LODSelector) SetViewport(vp scene.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vp.Scale != s.vp.Scale || vp.Width != s.vp.Width || vp.Height != s.vp.Height {
		s.cache.Clear()
		s.resets++
	}
	s.vp = vp
}

// Select returns the tier for obj, computing and caching it on a miss.
func (s *LODSelector) Select(obj *scene.Object) scene.LOD {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lod, ok := s.cache.Get(obj.ID); ok {
		s.hits++
		return lod
	}
	s.misses++
	lod := s.th.Classify(obj.Rect, s.vp)
	s.cache.Put(obj.ID, lod)
	return lod
}

// Forget drops the cached tier for id. Call it when the object's bounds
// change or it is removed.
func (s *LODSelector) Forget(id scene.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Del(id)
}

// Reset drops every cached tier.
func (s *LODSelector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
	s.resets++
}

// Stats returns a snapshot of the selector counters.
func (s *LODSelector) Stats() LODStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LODStats{
		Cached: s.cache.Len(),
		Hits:   s.hits,
		Misses: s.misses,
		Resets: s.resets,
	}
}
