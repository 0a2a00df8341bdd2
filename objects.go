package stage

import (
	"errors"
	"log/slog"
	"math"
	"slices"

	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/scene"
)

// dirtyMargin pads object rectangles so antialiased edges are repainted.
const dirtyMargin = 1

// AddObject registers obj. An object with the same ID is replaced.
// The object's screen rectangle (and the replaced one's) is marked dirty.
// Negative extents in obj.Rect are normalized.
func (e *Engine) AddObject(obj *scene.Object) error {
	if obj == nil {
		return errors.New("stage: nil object")
	}
	obj.Rect = obj.Rect.Canon()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	dirty := make([]geom.Rect, 0, 2)
	if old := e.objects.Add(obj); old != nil {
		e.index.Remove(old)
		dirty = append(dirty, e.screenLocked(old.Rect))
	}
	e.index.Insert(obj)
	e.culler.Invalidate()
	e.lod.Forget(obj.ID)
	dirty = append(dirty, e.screenLocked(obj.Rect))
	e.mu.Unlock()

	e.markAll(dirty)
	return nil
}

// AddObjects registers every object in objs and marks them dirty as one
// batch.
func (e *Engine) AddObjects(objs ...*scene.Object) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	dirty := make([]geom.Rect, 0, len(objs))
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		obj.Rect = obj.Rect.Canon()
		if old := e.objects.Add(obj); old != nil {
			e.index.Remove(old)
			dirty = append(dirty, e.screenLocked(old.Rect))
		}
		e.index.Insert(obj)
		e.lod.Forget(obj.ID)
		dirty = append(dirty, e.screenLocked(obj.Rect))
	}
	e.culler.Invalidate()
	e.mu.Unlock()

	e.markAll(dirty)
	return nil
}

// RemoveObject unregisters the object with the given ID and marks its screen
// rectangle dirty.
func (e *Engine) RemoveObject(id scene.ObjectID) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	obj, ok := e.objects.Remove(id)
	if !ok {
		e.mu.Unlock()
		return ErrObjectNotFound
	}
	e.index.Remove(obj)
	e.culler.Invalidate()
	e.lod.Forget(id)
	dirty := e.screenLocked(obj.Rect)
	e.mu.Unlock()

	e.markAll([]geom.Rect{dirty})
	return nil
}

// UpdateObject applies patch to the object's bounds, reindexes it and marks
// the old and new screen rectangles dirty. An empty patch does nothing.
func (e *Engine) UpdateObject(id scene.ObjectID, patch scene.BoundsPatch) error {
	if patch.IsEmpty() {
		e.mu.RLock()
		defer e.mu.RUnlock()
		if _, ok := e.objects.Get(id); !ok {
			return ErrObjectNotFound
		}
		return nil
	}
	return e.ModifyObject(id, func(obj *scene.Object) {
		obj.Rect = patch.Apply(obj.Rect)
	})
}

// ModifyObject calls fn with the object locked for writing, then reindexes
// it and marks the old and new screen rectangles dirty. Use it to change
// ZIndex, Hidden, Culled or Painter.
func (e *Engine) ModifyObject(id scene.ObjectID, fn func(*scene.Object)) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	obj, ok := e.objects.Get(id)
	if !ok {
		e.mu.Unlock()
		return ErrObjectNotFound
	}

	before := obj.Rect
	fn(obj)
	obj.ID = id
	obj.Rect = obj.Rect.Canon()
	if obj.Rect != before {
		e.index.Update(obj)
	}
	e.culler.Invalidate()
	e.lod.Forget(id)
	dirty := []geom.Rect{e.screenLocked(before)}
	if obj.Rect != before {
		dirty = append(dirty, e.screenLocked(obj.Rect))
	}
	e.mu.Unlock()

	e.markAll(dirty)
	return nil
}

// Object returns the object with the given ID.
func (e *Engine) Object(id scene.ObjectID) (*scene.Object, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.objects.Get(id)
}

// Len returns the number of registered objects.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.objects.Len()
}

// Clear removes every object and forces a full redraw. It does nothing
// after Close.
func (e *Engine) Clear() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.objects.Clear()
	e.index.Clear()
	e.culler.Invalidate()
	e.lod.Reset()
	e.mu.Unlock()

	e.sched.ForceFullRedraw()
}

// UpdateViewport applies patch to the viewport. Width and Height are rounded
// to whole pixels. A size change resizes the canvas. Any change forces a full
// redraw.
func (e *Engine) UpdateViewport(patch scene.ViewportPatch) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	prev := e.vp
	vp := patch.Apply(prev)
	vp.Width, vp.Height = math.Round(vp.Width), math.Round(vp.Height)
	if vp.Width <= 0 || vp.Height <= 0 || vp.Scale <= 0 {
		e.mu.Unlock()
		return errors.New("stage: viewport size and scale must be positive")
	}
	if vp == prev {
		e.mu.Unlock()
		return nil
	}
	e.vp = vp
	e.culler.SetViewport(vp)
	e.lod.SetViewport(vp)
	resized := vp.Width != prev.Width || vp.Height != prev.Height
	if resized {
		e.target.Resize(int(vp.Width), int(vp.Height))
	}
	e.sched.SetTransform(vp.Transform())
	e.mu.Unlock()

	if resized {
		e.log.Debug("canvas resized",
			slog.Float64("width", vp.Width),
			slog.Float64("height", vp.Height))
	}
	e.sched.ForceFullRedraw()
	return nil
}

// Viewport returns the current viewport.
func (e *Engine) Viewport() scene.Viewport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vp
}

// VisibleObjects returns the renderable objects in the padded viewport in
// paint order. The slice is a copy owned by the caller.
func (e *Engine) VisibleObjects() []*scene.Object {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.culler.VisibleObjects())
}

// ObjectAt returns the topmost renderable object under the canvas pixel
// (x, y), or nil.
func (e *Engine) ObjectAt(x, y float64) *scene.Object {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p := e.vp.ToWorld(x, y)
	return e.culler.ObjectAt(p.X, p.Y)
}

// ObjectsInRegion returns the renderable objects intersecting the world
// rectangle r in paint order.
func (e *Engine) ObjectsInRegion(r geom.Rect) []*scene.Object {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.culler.ObjectsInRegion(r)
}

func (e *Engine) screenLocked(world geom.Rect) geom.Rect {
	return e.vp.ToScreen(world).Expand(dirtyMargin)
}

// markAll forwards dirty rectangles to the scheduler. It must be called
// without e.mu held: a synchronous frame requester paints from inside
// MarkDirty.
func (e *Engine) markAll(rects []geom.Rect) {
	canvas := e.Viewport().ScreenRect()
	for _, r := range rects {
		if !r.Intersects(canvas) {
			continue
		}
		e.sched.MarkDirty(r.X, r.Y, r.Width, r.Height)
	}
}
