package geom

// Verb is a path construction command.
type Verb uint8

// Path verbs.
const (
	MoveTo Verb = iota
	LineTo
	Close
)

// Path is a polyline path made of MoveTo, LineTo and Close commands.
// Curves are flattened by the caller before they reach stage.
type Path struct {
	verbs  []Verb
	points []Point
}

// NewPath creates an empty path.
func NewPath() *Path {
	return &Path{}
}

// MoveTo starts a new subpath at (x, y).
func (p *Path) MoveTo(x, y float64) {
	p.verbs = append(p.verbs, MoveTo)
	p.points = append(p.points, Point{X: x, Y: y})
}

// LineTo adds a line segment to (x, y). A LineTo on an empty path acts as MoveTo.
func (p *Path) LineTo(x, y float64) {
	if len(p.verbs) == 0 {
		p.MoveTo(x, y)
		return
	}
	p.verbs = append(p.verbs, LineTo)
	p.points = append(p.points, Point{X: x, Y: y})
}

// Close closes the current subpath.
func (p *Path) Close() {
	if len(p.verbs) == 0 {
		return
	}
	p.verbs = append(p.verbs, Close)
}

// Len returns the number of points in the path.
func (p *Path) Len() int { return len(p.points) }

// IsEmpty reports whether the path has no points.
func (p *Path) IsEmpty() bool { return len(p.points) == 0 }

// Points returns the path points. The slice is owned by the path and is only
// valid until the next mutation or Reset.
func (p *Path) Points() []Point { return p.points }

// Verbs returns the path verbs, owned by the path.
func (p *Path) Verbs() []Verb { return p.verbs }

// Bounds returns the bounding box of all points.
func (p *Path) Bounds() Rect {
	if len(p.points) == 0 {
		return Rect{}
	}
	b := Rect{X: p.points[0].X, Y: p.points[0].Y}
	for _, pt := range p.points[1:] {
		b = b.Union(Rect{X: pt.X, Y: pt.Y})
	}
	return b
}

// Transform applies m to every point in place.
func (p *Path) Transform(m Matrix) {
	for i, pt := range p.points {
		p.points[i] = m.TransformPoint(pt)
	}
}

// Clone returns a deep copy of the path.
func (p *Path) Clone() *Path {
	return &Path{
		verbs:  append([]Verb(nil), p.verbs...),
		points: append([]Point(nil), p.points...),
	}
}

// Reset clears the path, keeping its backing arrays for reuse.
// Points are plain values, so the retained arrays hold no caller references.
func (p *Path) Reset() {
	p.verbs = p.verbs[:0]
	p.points = p.points[:0]
}
