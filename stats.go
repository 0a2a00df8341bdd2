package stage

import (
	"github.com/gogpu/stage/assets"
	"github.com/gogpu/stage/cull"
	"github.com/gogpu/stage/memory"
	"github.com/gogpu/stage/pool"
	"github.com/gogpu/stage/render"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/spatial"
	"github.com/gogpu/stage/worker"
)

// Stats is a snapshot of every engine service.
type Stats struct {
	Objects  int
	Viewport scene.Viewport
	Index    spatial.Stats
	Cull     cull.Stats
	LOD      cull.LODStats
	Render   render.Stats
	Pools    []pool.Stats
	Memory   memory.Stats

	// Assets is zero when the engine has no asset store.
	Assets assets.Stats

	// Workers is zero when the engine has no worker pool.
	Workers worker.Stats

	Events uint64
}

// Stats returns a snapshot of the engine.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	s := Stats{
		Objects:  e.objects.Len(),
		Viewport: e.vp,
		Index:    e.index.Stats(),
	}
	e.mu.RUnlock()

	s.Cull = e.culler.Stats()
	s.LOD = e.lod.Stats()
	s.Render = e.sched.Stats()
	s.Pools = e.pools.Stats()
	s.Memory = e.monitor.Stats()
	if e.assets != nil {
		s.Assets = e.assets.Stats()
	}
	if e.workers != nil {
		s.Workers = e.workers.Stats()
	}
	s.Events = e.hub.Published()
	return s
}

// registerMetrics exposes service counters as scrape-time collectors.
func (e *Engine) registerMetrics() {
	m := e.metrics
	m.GaugeFunc("objects", "The number of registered objects.", func() float64 {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return float64(e.objects.Len())
	})
	m.GaugeFunc("visible_objects", "The number of objects visible at the last cull.", func() float64 {
		return float64(e.culler.Stats().Visible)
	})
	m.GaugeFunc("quadtree_nodes", "The number of quadtree nodes.", func() float64 {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return float64(e.index.Stats().Nodes)
	})
	m.CounterFunc("frames_total", "The number of frames painted.", func() float64 {
		return float64(e.sched.Stats().Frames)
	})
	m.CounterFunc("frames_skipped_total", "The number of frames skipped over budget.", func() float64 {
		return float64(e.sched.Stats().Skipped)
	})
	m.CounterFunc("cull_queries_total", "The number of visibility queries.", func() float64 {
		return float64(e.culler.Stats().Queries)
	})
	m.GaugeFunc("pool_active_objects", "The number of pooled geometry values in use.", func() float64 {
		n := 0
		for _, ps := range e.pools.Stats() {
			n += ps.Active
		}
		return float64(n)
	})
	m.GaugeFunc("memory_used_bytes", "The heap usage at the last sample.", func() float64 {
		return float64(e.monitor.Stats().Used)
	})
	if e.workers != nil {
		m.GaugeFunc("workers", "The number of live workers.", func() float64 {
			return float64(e.workers.Stats().Workers)
		})
		m.GaugeFunc("worker_queue_length", "The number of queued worker tasks.", func() float64 {
			return float64(e.workers.Stats().Queued)
		})
		m.CounterFunc("worker_tasks_total", "The number of worker tasks completed.", func() float64 {
			return float64(e.workers.Stats().Completed)
		})
	}
	if e.assets != nil {
		m.CounterFunc("assets_decoded_total", "The number of images decoded.", func() float64 {
			return float64(e.assets.Stats().Decoded)
		})
	}
}
