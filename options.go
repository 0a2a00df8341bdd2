package stage

import (
	"io/fs"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/stage/assets"
	"github.com/gogpu/stage/cull"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/memory"
	"github.com/gogpu/stage/render"
	"github.com/gogpu/stage/spatial"
	"github.com/gogpu/stage/worker"
)

// DefaultWorldBounds is the quadtree root when WithWorldBounds is not used.
// Objects outside it are still indexed, at the root.
var DefaultWorldBounds = geom.R(-50_000, -50_000, 100_000, 100_000)

// Option configures an Engine during creation.
//
// Example:
//
//	e, err := stage.New(1280, 720,
//	    stage.WithFrames(frames),
//	    stage.WithAssets(os.DirFS("assets"), assets.Config{}),
//	    stage.WithWorkers(worker.Config{Spawn: worker.InProcess(geometry.Handler())}),
//	)
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	logger     *slog.Logger
	registry   *prometheus.Registry
	world      geom.Rect
	index      spatial.Config
	cull       cull.Config
	lod        cull.Thresholds
	render     render.Config
	frames     render.FrameRequester
	sampler    memory.Sampler
	memory     memory.Config
	assetsFS   fs.FS
	assets     assets.Config
	workers    *worker.Config
	poolSize   [2]int
	onPressure func(error)
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{
		world:  DefaultWorldBounds,
		cull:   cull.DefaultConfig(),
		lod:    cull.DefaultThresholds(),
		render: render.DefaultConfig(),
		memory: memory.Config{},
	}
}

// WithRegistry collects engine metrics into reg instead of a private
// registry. Collector names are fixed, so reg must not be shared by two
// engines.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithWorldBounds sets the quadtree root rectangle.
func WithWorldBounds(r geom.Rect) Option {
	return func(o *options) {
		o.world = r
	}
}

// WithIndex sets the quadtree node capacity and depth limit.
func WithIndex(maxObjects, maxLevels int) Option {
	return func(o *options) {
		o.index.MaxObjects = maxObjects
		o.index.MaxLevels = maxLevels
	}
}

// WithCuller configures the viewport culler.
func WithCuller(cfg cull.Config) Option {
	return func(o *options) {
		o.cull = cfg
	}
}

// WithLOD sets the level-of-detail thresholds.
func WithLOD(th cull.Thresholds) Option {
	return func(o *options) {
		o.lod = th
	}
}

// WithRender configures the render scheduler. Hub and Logger are set by the
// engine.
func WithRender(cfg render.Config) Option {
	return func(o *options) {
		o.render = cfg
	}
}

// WithFrames sets the host frame requester. Without it the engine paints
// only when Render is called.
func WithFrames(fr render.FrameRequester) Option {
	return func(o *options) {
		o.frames = fr
	}
}

// WithMemory sets the memory sampler and monitor configuration.
// A nil sampler reads the Go runtime.
func WithMemory(s memory.Sampler, cfg memory.Config) Option {
	return func(o *options) {
		o.sampler = s
		o.memory = cfg
	}
}

// WithPressureHandler sets the function receiving a *memory.PressureError
// when memory pressure turns critical.
func WithPressureHandler(fn func(error)) Option {
	return func(o *options) {
		o.onPressure = fn
	}
}

// WithAssets enables the image asset store reading from fsys. Its cache
// tiers are registered with the memory monitor.
func WithAssets(fsys fs.FS, cfg assets.Config) Option {
	return func(o *options) {
		o.assetsFS = fsys
		o.assets = cfg
	}
}

// WithWorkers enables the worker pool. cfg.Spawn is required.
func WithWorkers(cfg worker.Config) Option {
	return func(o *options) {
		o.workers = &cfg
	}
}

// WithPoolSize sets the initial and maximum size of the geometry value
// pools. Zero keeps the pool defaults.
func WithPoolSize(initial, max int) Option {
	return func(o *options) {
		o.poolSize = [2]int{initial, max}
	}
}
