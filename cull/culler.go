package cull

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/kamstrup/intmap"

	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/internal/logging"
	"github.com/gogpu/stage/scene"
)

// Default configuration constants.
const (
	// DefaultPadding is the cull margin in screen pixels.
	DefaultPadding = 100

	// DefaultTolerance is the world-space edge drift under which the
	// previous result is reused.
	DefaultTolerance = 0.5

	// DefaultMemoClearEvery is the generation cadence of full memo clears.
	DefaultMemoClearEvery = 64

	memoCapacity = 1024
)

// Index is the spatial query surface the Culler reads from.
// *spatial.Quadtree[*scene.Object] satisfies it.
type Index interface {
	QueryInto(dst []*scene.Object, r geom.Rect) []*scene.Object
}

// Config configures a Culler.
type Config struct {
	// Padding expands the viewport by this many screen pixels on every side.
	Padding float64

	// Tolerance is the maximum world-space edge movement for result reuse.
	Tolerance float64

	// MemoClearEvery clears the memo every this many generations.
	MemoClearEvery uint64

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the default culler configuration.
func DefaultConfig() Config {
	return Config{
		Padding:        DefaultPadding,
		Tolerance:      DefaultTolerance,
		MemoClearEvery: DefaultMemoClearEvery,
	}
}

// Stats is a snapshot of culler counters.
type Stats struct {
	Generation  uint64
	Visible     int
	Queries     uint64
	Reused      uint64
	Candidates  uint64
	MemoEntries int
	MemoHits    uint64
	MemoMisses  uint64
	MemoClears  uint64
}

type memoEntry struct {
	gen     uint64
	visible bool
}

// Culler computes visible object sets. It is safe for concurrent use.
type Culler struct {
	mu    sync.Mutex
	cfg   Config
	log   *slog.Logger
	index Index

	vp       scene.Viewport
	gen      uint64
	memo     *intmap.Map[scene.ObjectID, memoEntry]
	lastRect geom.Rect
	lastGen  uint64
	valid    bool
	visible  []*scene.Object
	scratch  []*scene.Object

	queries    uint64
	reused     uint64
	candidates uint64
	memoHits   uint64
	memoMisses uint64
	memoClears uint64
}

// NewCuller creates a Culler over index. Zero config values are replaced by
// the package defaults.
func NewCuller(index Index, cfg Config) *Culler {
	def := DefaultConfig()
	if cfg.Padding < 0 {
		cfg.Padding = 0
	} else if cfg.Padding == 0 {
		cfg.Padding = def.Padding
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MemoClearEvery == 0 {
		cfg.MemoClearEvery = def.MemoClearEvery
	}

	return &Culler{
		cfg:   cfg,
		log:   logging.Component(cfg.Logger, "cull"),
		index: index,
		vp:    scene.Viewport{Scale: 1},
		memo:  intmap.New[scene.ObjectID, memoEntry](memoCapacity),
	}
}

// Viewport returns the current viewport.
func (c *Culler) Viewport() scene.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp
}

// SetViewport moves the camera. A move of the cull rectangle beyond
// Tolerance starts a new generation.
func (c *Culler) SetViewport(vp scene.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vp = vp
	if !c.valid || !c.cullRectLocked().NearlyEqual(c.lastRect, c.cfg.Tolerance) {
		c.bumpLocked()
	}
}

// Invalidate starts a new generation. Call it after any insert, remove or
// bounds update.
func (c *Culler) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked()
}

// CullRect returns the padded world rectangle used for queries.
func (c *Culler) CullRect() geom.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cullRectLocked()
}

// VisibleObjects returns the renderable objects intersecting the padded
// viewport, sorted ascending by ZIndex with ties in insertion order.
//
// The returned slice is owned by the Culler and is valid until the next
// call. Callers must not modify it.
func (c *Culler) VisibleObjects() []*scene.Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries++
	rect := c.cullRectLocked()
	if c.valid && c.gen == c.lastGen && rect.NearlyEqual(c.lastRect, c.cfg.Tolerance) {
		c.reused++
		return c.visible
	}

	c.scratch = c.index.QueryInto(c.scratch[:0], rect)
	c.candidates += uint64(len(c.scratch))

	vis := c.visible[:0]
	for _, obj := range c.scratch {
		if c.decideLocked(obj, rect) {
			vis = append(vis, obj)
		}
	}
	clear(c.scratch)
	slices.SortFunc(vis, scene.Compare)

	c.visible = vis
	c.lastRect = rect
	c.lastGen = c.gen
	c.valid = true
	return c.visible
}

// ObjectAt returns the topmost renderable object containing the world point
// (x, y), or nil.
func (c *Culler) ObjectAt(x, y float64) *scene.Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scratch = c.index.QueryInto(c.scratch[:0], geom.R(x, y, 0, 0))
	var top *scene.Object
	for _, obj := range c.scratch {
		if !obj.Renderable() || !obj.Rect.Canon().ContainsPoint(x, y) {
			continue
		}
		if top == nil || scene.Less(top, obj) {
			top = obj
		}
	}
	clear(c.scratch)
	return top
}

// ObjectsInRegion returns the renderable objects intersecting the world
// rectangle r in paint order. The result is freshly allocated.
func (c *Culler) ObjectsInRegion(r geom.Rect) []*scene.Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := c.index.QueryInto(nil, r)
	out := found[:0]
	for _, obj := range found {
		if obj.Renderable() {
			out = append(out, obj)
		}
	}
	clear(found[len(out):])
	slices.SortFunc(out, scene.Compare)
	return out
}

// Stats returns a snapshot of the culler counters.
func (c *Culler) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Generation:  c.gen,
		Visible:     len(c.visible),
		Queries:     c.queries,
		Reused:      c.reused,
		Candidates:  c.candidates,
		MemoEntries: c.memo.Len(),
		MemoHits:    c.memoHits,
		MemoMisses:  c.memoMisses,
		MemoClears:  c.memoClears,
	}
}

func (c *Culler) cullRectLocked() geom.Rect {
	pad := c.cfg.Padding
	if s := c.vp.Scale; s > 0 {
		pad /= s
	}
	return c.vp.WorldRect().Expand(pad)
}

// decideLocked returns the memoized visibility of obj for the current
// generation, computing it on a miss.
func (c *Culler) decideLocked(obj *scene.Object, rect geom.Rect) bool {
	if e, ok := c.memo.Get(obj.ID); ok && e.gen == c.gen {
		c.memoHits++
		return e.visible
	}
	c.memoMisses++
	vis := obj.Renderable() && obj.Rect.Canon().Intersects(rect)
	c.memo.Put(obj.ID, memoEntry{gen: c.gen, visible: vis})
	return vis
}

func (c *Culler) bumpLocked() {
	c.gen++
	if c.gen%c.cfg.MemoClearEvery == 0 {
		c.memo.Clear()
		c.memoClears++
		c.log.Debug("cull memo cleared", slog.Uint64("generation", c.gen))
	}
}
