package geom

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Matrix represents a 2D affine transformation matrix.
// It shares its layout with f64.Aff3, a 2x3 matrix in row-major order:
//
//	| a  b  c |
//	| d  e  f |
//
// This represents the transformation:
//
//	x' = a*x + b*y + c
//	y' = d*x + e*y + f
//
// A Matrix converts to f64.Aff3 without copying semantics changes, so it can
// be handed directly to golang.org/x/image/draw transformers.
type Matrix f64.Aff3

// Identity returns the identity transformation matrix.
func Identity() Matrix {
	return Matrix{1, 0, 0, 0, 1, 0}
}

// Translate creates a translation matrix.
func Translate(x, y float64) Matrix {
	return Matrix{1, 0, x, 0, 1, y}
}

// Scale creates a scaling matrix.
func Scale(x, y float64) Matrix {
	return Matrix{x, 0, 0, 0, y, 0}
}

// Rotate creates a rotation matrix (angle in radians).
func Rotate(angle float64) Matrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return Matrix{cos, -sin, 0, sin, cos, 0}
}

// Multiply multiplies two matrices (m * other).
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		m[0]*other[0] + m[1]*other[3],
		m[0]*other[1] + m[1]*other[4],
		m[0]*other[2] + m[1]*other[5] + m[2],
		m[3]*other[0] + m[4]*other[3],
		m[3]*other[1] + m[4]*other[4],
		m[3]*other[2] + m[4]*other[5] + m[5],
	}
}

// TransformPoint applies the transformation to a point.
func (m Matrix) TransformPoint(p Point) Point {
	return Point{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}

// TransformRect returns the axis-aligned bounds of r after transformation.
func (m Matrix) TransformRect(r Rect) Rect {
	p0 := m.TransformPoint(Point{X: r.X, Y: r.Y})
	p1 := m.TransformPoint(Point{X: r.Right(), Y: r.Y})
	p2 := m.TransformPoint(Point{X: r.X, Y: r.Bottom()})
	p3 := m.TransformPoint(Point{X: r.Right(), Y: r.Bottom()})
	out := RectFromPoints(p0, p3)
	out = out.Union(RectFromPoints(p1, p2))
	return out
}

// Invert returns the inverse matrix.
// The second result is false when the matrix is singular.
func (m Matrix) Invert() (Matrix, bool) {
	det := m[0]*m[4] - m[1]*m[3]
	if math.Abs(det) < 1e-12 {
		return Matrix{}, false
	}
	inv := 1 / det
	return Matrix{
		m[4] * inv,
		-m[1] * inv,
		(m[1]*m[5] - m[2]*m[4]) * inv,
		-m[3] * inv,
		m[0] * inv,
		(m[2]*m[3] - m[0]*m[5]) * inv,
	}, true
}

// Aff3 returns the matrix as an f64.Aff3.
func (m Matrix) Aff3() f64.Aff3 { return f64.Aff3(m) }

// Reset restores the identity transform.
func (m *Matrix) Reset() { *m = Identity() }
