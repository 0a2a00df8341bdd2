package scene

import (
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/render"
)

// ObjectID identifies a registered object.
type ObjectID uint64

// Painter draws one object into a render context at the given detail tier.
// The core never interprets the tier itself.
type Painter interface {
	Paint(ctx *render.Context, obj *Object, lod LOD)
}

// PainterFunc adapts a function to the Painter interface.
type PainterFunc func(ctx *render.Context, obj *Object, lod LOD)

// Paint calls f(ctx, obj, lod).
func (f PainterFunc) Paint(ctx *render.Context, obj *Object, lod LOD) {
	f(ctx, obj, lod)
}

// Object is a registered graphical object.
//
// The zero value is a visible, unculled object at the origin with no size.
type Object struct {
	// ID is the application-assigned identifier.
	ID ObjectID

	// Rect is the axis-aligned bounding box in world units.
	Rect geom.Rect

	// ZIndex orders painting: lower values paint first.
	ZIndex int

	// Hidden excludes the object from visibility queries.
	Hidden bool

	// Culled marks an object the application has culled by other means.
	Culled bool

	// Painter draws the object. Nil objects are skipped when painting.
	Painter Painter

	// Data carries application payload. The core never reads it.
	Data any

	seq uint64
}

// Bounds returns the object's bounding box.
func (o *Object) Bounds() geom.Rect {
	return o.Rect
}

// Seq returns the insertion sequence assigned when the object was added to
// a Set. Ties in ZIndex are broken by Seq.
func (o *Object) Seq() uint64 {
	return o.seq
}

// Renderable reports whether the object takes part in visibility queries.
func (o *Object) Renderable() bool {
	return !o.Hidden && !o.Culled
}

// BoundsPatch is a partial bounds update. Nil fields keep their value.
type BoundsPatch struct {
	X, Y, Width, Height *float64
}

// Apply returns r with the patch applied.
func (p BoundsPatch) Apply(r geom.Rect) geom.Rect {
	if p.X != nil {
		r.X = *p.X
	}
	if p.Y != nil {
		r.Y = *p.Y
	}
	if p.Width != nil {
		r.Width = *p.Width
	}
	if p.Height != nil {
		r.Height = *p.Height
	}
	return r
}

// IsEmpty reports whether the patch changes nothing.
func (p BoundsPatch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil
}

// Less reports whether a paints before b.
func Less(a, b *Object) bool {
	if a.ZIndex != b.ZIndex {
		return a.ZIndex < b.ZIndex
	}
	return a.seq < b.seq
}

// Compare orders objects for slices.SortFunc: ZIndex ascending, then Seq.
func Compare(a, b *Object) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	}
	return 0
}
