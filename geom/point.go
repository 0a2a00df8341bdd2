package geom

import "math"

// Point is a position or offset in world units.
type Point struct {
	X, Y float64
}

// Pt returns Point{x, y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Pt(p.X+q.X, p.Y+q.Y)
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Pt(p.X-q.X, p.Y-q.Y)
}

// Mul returns p scaled by s.
func (p Point) Mul(s float64) Point {
	return Pt(p.X*s, p.Y*s)
}

// Dot returns the dot product.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Cross returns the z component of the 3D cross product.
func (p Point) Cross(q Point) float64 {
	return p.X*q.Y - p.Y*q.X
}

// Length returns the Euclidean norm.
func (p Point) Length() float64 {
	return math.Hypot(p.X, p.Y)
}

// Distance returns |p-q|.
func (p Point) Distance(q Point) float64 {
	return p.Sub(q).Length()
}

// SegmentDistance returns the distance from p to the closest point of the
// segment a-b.
func (p Point) SegmentDistance(a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Distance(a)
	}
	t := min(1, max(0, p.Sub(a).Dot(ab)/l2))
	return p.Distance(a.Add(ab.Mul(t)))
}

// Reset zeroes p for pooling.
func (p *Point) Reset() { *p = Point{} }
