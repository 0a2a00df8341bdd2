package geom

import (
	"image"
	"math"
)

// Rect is an axis-aligned rectangle. Width and Height are never negative for
// rectangles produced by this package; a zero-size Rect is a valid degenerate
// box (a point or a line).
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// R is a convenience constructor for Rect.
func R(x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// RectFromPoints returns the smallest Rect containing both corners.
func RectFromPoints(a, b Point) Rect {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Canon returns r with a non-negative Width and Height covering the same
// area. A rectangle dragged up or to the left has negative extents.
func (r Rect) Canon() Rect {
	if r.Width >= 0 && r.Height >= 0 {
		return r
	}
	return RectFromPoints(Point{X: r.X, Y: r.Y}, Point{X: r.Right(), Y: r.Bottom()})
}

// Right returns the X coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the Y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the center point.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Area returns Width*Height.
func (r Rect) Area() float64 { return r.Width * r.Height }

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Intersects reports whether r and o share at least one point.
// Edges are inclusive, so touching rectangles and degenerate boxes lying on
// an edge intersect.
func (r Rect) Intersects(o Rect) bool {
	return r.X <= o.Right() && o.X <= r.Right() &&
		r.Y <= o.Bottom() && o.Y <= r.Bottom()
}

// Overlaps reports whether r and o share a region of positive area.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.Right() && o.X < r.Right() &&
		r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Contains reports whether o lies entirely inside r (edges inclusive).
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Right() <= r.Right() &&
		o.Y >= r.Y && o.Bottom() <= r.Bottom()
}

// ContainsPoint reports whether (x, y) lies inside r (edges inclusive).
func (r Rect) ContainsPoint(x, y float64) bool {
	return x >= r.X && x <= r.Right() && y >= r.Y && y <= r.Bottom()
}

// Union returns the smallest rectangle containing r and o.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.Right(), o.Right())
	maxY := math.Max(r.Bottom(), o.Bottom())
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Intersect returns the intersection of r and o.
// The second result is false when they do not intersect.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	if !r.Intersects(o) {
		return Rect{}, false
	}
	minX := math.Max(r.X, o.X)
	minY := math.Max(r.Y, o.Y)
	maxX := math.Min(r.Right(), o.Right())
	maxY := math.Min(r.Bottom(), o.Bottom())
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// Expand grows the rectangle by d on every side. A negative d shrinks it,
// clamping the size at zero.
func (r Rect) Expand(d float64) Rect {
	out := Rect{X: r.X - d, Y: r.Y - d, Width: r.Width + 2*d, Height: r.Height + 2*d}
	if out.Width < 0 {
		out.X += out.Width / 2
		out.Width = 0
	}
	if out.Height < 0 {
		out.Y += out.Height / 2
		out.Height = 0
	}
	return out
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Gap returns the largest axis separation between r and o, or 0 when they
// intersect. Two rectangles with Gap < t are "within t" of each other.
func (r Rect) Gap(o Rect) float64 {
	dx := math.Max(0, math.Max(o.X-r.Right(), r.X-o.Right()))
	dy := math.Max(0, math.Max(o.Y-r.Bottom(), r.Y-o.Bottom()))
	return math.Max(dx, dy)
}

// NearlyEqual reports whether every edge of r is within tol of o's.
func (r Rect) NearlyEqual(o Rect, tol float64) bool {
	return math.Abs(r.X-o.X) <= tol &&
		math.Abs(r.Y-o.Y) <= tol &&
		math.Abs(r.Right()-o.Right()) <= tol &&
		math.Abs(r.Bottom()-o.Bottom()) <= tol
}

// ImageRect converts r to integer pixel bounds, rounding outward.
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)),
		int(math.Floor(r.Y)),
		int(math.Ceil(r.Right())),
		int(math.Ceil(r.Bottom())),
	)
}

// FromImageRect converts integer pixel bounds to a Rect.
func FromImageRect(ir image.Rectangle) Rect {
	return Rect{
		X:      float64(ir.Min.X),
		Y:      float64(ir.Min.Y),
		Width:  float64(ir.Dx()),
		Height: float64(ir.Dy()),
	}
}

// Reset zeroes the rectangle.
func (r *Rect) Reset() { *r = Rect{} }
