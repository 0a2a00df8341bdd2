package geometry

import (
	"math"

	"github.com/gogpu/stage/geom"
)

// Point is a vertex on the wire.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) geom() geom.Point { return geom.Pt(p.X, p.Y) }

// Shape is a polyline, or a polygon when Closed.
type Shape struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
	Closed bool    `json:"closed,omitempty"`
}

// Bounds is an axis-aligned box on the wire.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func boundsOf(r geom.Rect) Bounds {
	return Bounds{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// Rect returns the bounds as a geom.Rect.
func (b Bounds) Rect() geom.Rect { return geom.R(b.X, b.Y, b.Width, b.Height) }

// BoundsOf returns the bounding box of s. An empty shape has zero bounds.
func BoundsOf(s Shape) Bounds {
	if len(s.Points) == 0 {
		return Bounds{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range s.Points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Perimeter returns the length of s, including the closing edge of a polygon.
func Perimeter(s Shape) float64 {
	n := len(s.Points)
	if n < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < n; i++ {
		total += s.Points[i-1].geom().Distance(s.Points[i].geom())
	}
	if s.Closed {
		total += s.Points[n-1].geom().Distance(s.Points[0].geom())
	}
	return total
}

// Area returns the absolute shoelace area of a closed shape, or 0.
func Area(s Shape) float64 {
	if !s.Closed || len(s.Points) < 3 {
		return 0
	}
	return math.Abs(signedArea(s.Points))
}

func signedArea(pts []Point) float64 {
	sum := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].geom().Cross(pts[j].geom())
	}
	return sum / 2
}

// Centroid returns the area centroid of a polygon, falling back to the
// vertex mean for open or degenerate shapes.
func Centroid(s Shape) Point {
	n := len(s.Points)
	if n == 0 {
		return Point{}
	}
	if s.Closed && n >= 3 {
		if a := signedArea(s.Points); a != 0 {
			var cx, cy float64
			for i := range s.Points {
				p, q := s.Points[i], s.Points[(i+1)%n]
				cross := p.geom().Cross(q.geom())
				cx += (p.X + q.X) * cross
				cy += (p.Y + q.Y) * cross
			}
			return Point{X: cx / (6 * a), Y: cy / (6 * a)}
		}
	}
	var sx, sy float64
	for _, p := range s.Points {
		sx += p.X
		sy += p.Y
	}
	return Point{X: sx / float64(n), Y: sy / float64(n)}
}

// Simplify returns pts reduced by Ramer-Douglas-Peucker. Vertices closer
// than tolerance to the simplified line are dropped. The endpoints are kept.
func Simplify(pts []Point, tolerance float64) []Point {
	if len(pts) < 3 || tolerance <= 0 {
		return append([]Point(nil), pts...)
	}
	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true
	rdp(pts, 0, len(pts)-1, tolerance, keep)

	out := make([]Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

// rdp marks the vertices to keep between first and last, iteratively to
// bound stack depth on long polylines.
func rdp(pts []Point, first, last int, tolerance float64, keep []bool) {
	type span struct{ first, last int }
	stack := []span{{first, last}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		a, b := pts[s.first].geom(), pts[s.last].geom()
		index, dmax := -1, 0.0
		for i := s.first + 1; i < s.last; i++ {
			if d := pts[i].geom().SegmentDistance(a, b); d > dmax {
				index, dmax = i, d
			}
		}
		if index >= 0 && dmax > tolerance {
			keep[index] = true
			stack = append(stack, span{s.first, index}, span{index, s.last})
		}
	}
}

// dedupe drops consecutive repeated vertices, and the closing vertex of a
// polygon that repeats the first.
func dedupe(s Shape) Shape {
	out := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	if s.Closed && len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	s.Points = out
	return s
}
