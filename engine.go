package stage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/stage/assets"
	"github.com/gogpu/stage/cull"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/internal/logging"
	"github.com/gogpu/stage/memory"
	"github.com/gogpu/stage/render"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/spatial"
	"github.com/gogpu/stage/telemetry"
	"github.com/gogpu/stage/worker"
)

// Engine is the canvas core. It owns the object registry, the spatial index
// and every service attached through options.
//
// Engine is safe for concurrent use.
type Engine struct {
	log      *slog.Logger
	hub      *telemetry.Hub
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	detach   func()

	mu      sync.RWMutex
	objects *scene.Set
	index   *spatial.Quadtree[*scene.Object]
	vp      scene.Viewport
	closed  bool

	culler *cull.Culler
	lod    *cull.LODSelector
	sched  *render.Scheduler
	target *render.ImageTarget
	pools  *geom.Pools

	assets  *assets.Store
	monitor *memory.Monitor
	workers *worker.Pool

	// paintBuf is only touched by paint, which the scheduler runs
	// exclusively.
	paintBuf []*scene.Object
}

// New creates an engine with a width by height pixel canvas.
//
// The memory monitor is created but not started; call Start to begin
// sampling.
func New(width, height int, opts ...Option) (*Engine, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("stage: invalid canvas size %dx%d", width, height)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		log:      logging.Component(o.logger, "engine"),
		hub:      telemetry.NewHub(o.logger),
		registry: o.registry,
		objects:  scene.NewSet(),
		vp: scene.Viewport{
			Width:  float64(width),
			Height: float64(height),
			Scale:  1,
		},
	}
	if e.registry == nil {
		e.registry = prometheus.NewRegistry()
	}
	e.metrics = telemetry.NewMetrics(e.registry)
	e.detach = e.metrics.Attach(e.hub)

	idx := o.index
	idx.Bounds = o.world
	idx.Logger = o.logger
	e.index = spatial.New[*scene.Object](idx)

	cc := o.cull
	cc.Logger = o.logger
	e.culler = cull.NewCuller(e.index, cc)
	e.culler.SetViewport(e.vp)
	e.lod = cull.NewLODSelector(o.lod)
	e.lod.SetViewport(e.vp)

	e.pools = geom.NewPools(o.poolSize[0], o.poolSize[1], o.logger)

	rc := o.render
	rc.Hub = e.hub
	rc.Logger = o.logger
	e.target = render.NewImageTarget(width, height)
	e.sched = render.NewScheduler(e.target, e.paint, o.frames, rc)
	e.sched.SetTransform(e.vp.Transform())

	mc := o.memory
	mc.Hub = e.hub
	mc.Logger = o.logger
	if o.onPressure != nil {
		mc.OnError = o.onPressure
	}
	e.monitor = memory.NewMonitor(o.sampler, mc)

	if o.assetsFS != nil {
		ac := o.assets
		ac.Logger = o.logger
		e.assets = assets.New(o.assetsFS, ac)
		for _, t := range e.assets.Tiers() {
			e.monitor.Register(t)
		}
	}

	if o.workers != nil {
		wc := *o.workers
		wc.Hub = e.hub
		wc.Logger = o.logger
		p, err := worker.New(wc)
		if err != nil {
			e.detach()
			return nil, fmt.Errorf("stage: worker pool: %w", err)
		}
		e.workers = p
	}

	e.registerMetrics()
	e.sched.ForceFullRedraw()

	e.log.Info("engine created",
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Bool("assets", e.assets != nil),
		slog.Bool("workers", e.workers != nil))
	return e, nil
}

// Start begins memory sampling in the background. Sampling stops when ctx
// is done or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return e.monitor.Start(ctx)
}

// Close stops the memory monitor, terminates the worker pool and drops every
// object. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.objects.Clear()
	e.index.Clear()
	e.culler.Invalidate()
	e.lod.Reset()
	e.mu.Unlock()

	e.monitor.Stop()
	if e.workers != nil {
		e.workers.Terminate()
	}
	e.detach()
	e.log.Info("engine closed")
	return nil
}

// Render paints all pending dirt synchronously. It reports whether anything
// was painted.
func (e *Engine) Render() bool {
	return e.sched.Render()
}

// MarkDirty invalidates a canvas rectangle in pixels.
func (e *Engine) MarkDirty(x, y, w, h float64) {
	e.sched.MarkDirty(x, y, w, h)
}

// ForceFullRedraw schedules a repaint of the whole canvas.
func (e *Engine) ForceFullRedraw() {
	e.sched.ForceFullRedraw()
}

// Target returns the canvas the engine paints into.
func (e *Engine) Target() *render.ImageTarget {
	return e.target
}

// Scheduler returns the render scheduler.
func (e *Engine) Scheduler() *render.Scheduler {
	return e.sched
}

// Subscribe registers fn for telemetry events and returns the unsubscribe
// function.
func (e *Engine) Subscribe(fn telemetry.Listener) func() {
	return e.hub.Subscribe(fn)
}

// Registry returns the Prometheus registry holding the engine metrics.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

// Pools returns the geometry value pools.
func (e *Engine) Pools() *geom.Pools {
	return e.pools
}

// Monitor returns the memory monitor.
func (e *Engine) Monitor() *memory.Monitor {
	return e.monitor
}

// RegisterCache adds c to the caches the memory monitor evicts from and
// returns a function that removes it again.
func (e *Engine) RegisterCache(c memory.Evictable) func() {
	return e.monitor.Register(c)
}

// Assets returns the asset store, or nil when WithAssets was not used.
func (e *Engine) Assets() *assets.Store {
	return e.assets
}

// Image returns the named image from the asset store, decoding it on a miss.
func (e *Engine) Image(name string) (*image.RGBA, error) {
	if e.assets == nil {
		return nil, ErrNoAssets
	}
	return e.assets.Image(name)
}

// Workers returns the worker pool, or nil when WithWorkers was not used.
func (e *Engine) Workers() *worker.Pool {
	return e.workers
}

// Execute runs msg on the worker pool. A zero timeout uses the pool default.
func (e *Engine) Execute(ctx context.Context, msg worker.Message, priority int, timeout time.Duration) (worker.Response, error) {
	if e.workers == nil {
		return worker.Response{}, ErrNoWorkers
	}
	resp, err := e.workers.Execute(ctx, msg, priority, timeout)
	if errors.Is(err, worker.ErrTerminated) {
		return resp, errors.Join(ErrClosed, err)
	}
	return resp, err
}

// paint draws the visible objects intersecting region.
func (e *Engine) paint(ctx *render.Context, region *geom.Rect) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	vp := e.vp
	e.paintBuf = append(e.paintBuf[:0], e.culler.VisibleObjects()...)
	defer clear(e.paintBuf)

	var clip *geom.Rect
	if region != nil {
		clip = e.pools.Rects.Acquire()
		defer e.pools.Rects.Release(clip)
		tl := vp.ToWorld(region.X, region.Y)
		br := vp.ToWorld(region.Right(), region.Bottom())
		*clip = geom.RectFromPoints(tl, br)
	}

	for _, obj := range e.paintBuf {
		if obj.Painter == nil {
			continue
		}
		if clip != nil && !obj.Rect.Intersects(*clip) {
			continue
		}
		obj.Painter.Paint(ctx, obj, e.lod.Select(obj))
	}
}
