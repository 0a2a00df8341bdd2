package geometry

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/worker"
)

// DefaultCellSize is the cluster grid cell size when none is given.
const DefaultCellSize = 256

// ErrUnknownType is returned for request types the handler does not serve.
var ErrUnknownType = errors.New("geometry: unknown request type")

// Transform is an optional affine step applied by process: scale about the
// origin, rotate by Rotate radians, then translate.
type Transform struct {
	Scale  float64 `json:"scale,omitempty"`
	Rotate float64 `json:"rotate,omitempty"`
	DX     float64 `json:"dx,omitempty"`
	DY     float64 `json:"dy,omitempty"`
}

func (t *Transform) matrix() geom.Matrix {
	s := t.Scale
	if s == 0 {
		s = 1
	}
	return geom.Translate(t.DX, t.DY).Multiply(geom.Rotate(t.Rotate)).Multiply(geom.Scale(s, s))
}

// ProcessInput is the data of a process request.
type ProcessInput struct {
	Shapes    []Shape    `json:"shapes"`
	Transform *Transform `json:"transform,omitempty"`
}

// ProcessedShape is a normalized shape with its bounds.
type ProcessedShape struct {
	Shape
	Bounds  Bounds `json:"bounds"`
	Removed int    `json:"removed"`
}

// ProcessResult is the result of a process request.
type ProcessResult struct {
	Shapes []ProcessedShape `json:"shapes"`
	Bounds Bounds           `json:"bounds"`
}

// AnalyzeInput is the data of an analyze request.
type AnalyzeInput struct {
	Shapes []Shape `json:"shapes"`
}

// Analysis describes one shape.
type Analysis struct {
	ID        string  `json:"id"`
	Vertices  int     `json:"vertices"`
	Perimeter float64 `json:"perimeter"`
	Area      float64 `json:"area"`
	Centroid  Point   `json:"centroid"`
	Bounds    Bounds  `json:"bounds"`
}

// AnalyzeResult is the result of an analyze request.
type AnalyzeResult struct {
	Shapes         []Analysis `json:"shapes"`
	TotalArea      float64    `json:"totalArea"`
	TotalPerimeter float64    `json:"totalPerimeter"`
	Bounds         Bounds     `json:"bounds"`
}

// SimplifyInput is the data of a simplify request.
type SimplifyInput struct {
	Shapes    []Shape `json:"shapes"`
	Tolerance float64 `json:"tolerance"`
}

// SimplifyResult is the result of a simplify request.
type SimplifyResult struct {
	Shapes []Shape `json:"shapes"`
	Before int     `json:"before"`
	After  int     `json:"after"`
}

// ClusterInput is the data of a cluster request.
type ClusterInput struct {
	Shapes   []Shape `json:"shapes"`
	CellSize float64 `json:"cellSize,omitempty"`
}

// Cluster is a group of shapes whose centroids share a grid cell.
type Cluster struct {
	Cell   [2]int   `json:"cell"`
	Center Point    `json:"center"`
	IDs    []string `json:"ids"`
	Bounds Bounds   `json:"bounds"`
}

// ClusterResult is the result of a cluster request.
type ClusterResult struct {
	Clusters []Cluster `json:"clusters"`
	CellSize float64   `json:"cellSize"`
}

// ExportInput is the data of an export request. Format is "json" or "svg".
type ExportInput struct {
	Shapes []Shape `json:"shapes"`
	Format string  `json:"format"`
}

// ExportResult is the result of an export request.
type ExportResult struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

// Handler returns the geometry worker handler.
func Handler() worker.Handler {
	return worker.HandlerFunc(handle)
}

func handle(req worker.Request) (any, int, error) {
	switch req.Type {
	case worker.TypeProcess:
		var in ProcessInput
		if err := decode(req, &in); err != nil {
			return nil, 0, err
		}
		return Process(in), len(in.Shapes), nil
	case worker.TypeAnalyze:
		var in AnalyzeInput
		if err := decode(req, &in); err != nil {
			return nil, 0, err
		}
		return Analyze(in), len(in.Shapes), nil
	case worker.TypeSimplify:
		var in SimplifyInput
		if err := decode(req, &in); err != nil {
			return nil, 0, err
		}
		return SimplifyShapes(in), len(in.Shapes), nil
	case worker.TypeCluster:
		var in ClusterInput
		if err := decode(req, &in); err != nil {
			return nil, 0, err
		}
		return ClusterShapes(in), len(in.Shapes), nil
	case worker.TypeExport:
		var in ExportInput
		if err := decode(req, &in); err != nil {
			return nil, 0, err
		}
		res, err := Export(in)
		if err != nil {
			return nil, 0, err
		}
		return res, len(in.Shapes), nil
	}
	return nil, 0, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
}

func decode(req worker.Request, v any) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("geometry: %s request has no data", req.Type)
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return fmt.Errorf("geometry: decode %s: %w", req.Type, err)
	}
	return nil
}

// Process normalizes every shape and applies the optional transform.
func Process(in ProcessInput) ProcessResult {
	res := ProcessResult{Shapes: make([]ProcessedShape, 0, len(in.Shapes))}
	var m geom.Matrix
	if in.Transform != nil {
		m = in.Transform.matrix()
	}

	var total geom.Rect
	for i, s := range in.Shapes {
		clean := dedupe(s)
		if in.Transform != nil {
			pts := make([]Point, len(clean.Points))
			for j, p := range clean.Points {
				q := m.TransformPoint(p.geom())
				pts[j] = Point{X: q.X, Y: q.Y}
			}
			clean.Points = pts
		}
		b := BoundsOf(clean)
		res.Shapes = append(res.Shapes, ProcessedShape{
			Shape:   clean,
			Bounds:  b,
			Removed: len(s.Points) - len(clean.Points),
		})
		total = unionBounds(total, b.Rect(), i == 0)
	}
	res.Bounds = boundsOf(total)
	return res
}

// Analyze measures every shape.
func Analyze(in AnalyzeInput) AnalyzeResult {
	res := AnalyzeResult{Shapes: make([]Analysis, 0, len(in.Shapes))}
	var total geom.Rect
	for i, s := range in.Shapes {
		a := Analysis{
			ID:        s.ID,
			Vertices:  len(s.Points),
			Perimeter: Perimeter(s),
			Area:      Area(s),
			Centroid:  Centroid(s),
			Bounds:    BoundsOf(s),
		}
		res.Shapes = append(res.Shapes, a)
		res.TotalArea += a.Area
		res.TotalPerimeter += a.Perimeter
		total = unionBounds(total, a.Bounds.Rect(), i == 0)
	}
	res.Bounds = boundsOf(total)
	return res
}

// SimplifyShapes simplifies every shape with in.Tolerance.
func SimplifyShapes(in SimplifyInput) SimplifyResult {
	res := SimplifyResult{Shapes: make([]Shape, 0, len(in.Shapes))}
	for _, s := range in.Shapes {
		out := s
		out.Points = Simplify(s.Points, in.Tolerance)
		res.Before += len(s.Points)
		res.After += len(out.Points)
		res.Shapes = append(res.Shapes, out)
	}
	return res
}

// ClusterShapes groups shapes by the grid cell of their centroid. Clusters
// are ordered by cell row, then column.
func ClusterShapes(in ClusterInput) ClusterResult {
	size := in.CellSize
	if size <= 0 {
		size = DefaultCellSize
	}

	type acc struct {
		ids    []string
		sx, sy float64
		bounds geom.Rect
	}
	cells := make(map[[2]int]*acc)
	for _, s := range in.Shapes {
		if len(s.Points) == 0 {
			continue
		}
		c := Centroid(s)
		key := [2]int{int(math.Floor(c.X / size)), int(math.Floor(c.Y / size))}
		a, ok := cells[key]
		b := BoundsOf(s).Rect()
		if !ok {
			a = &acc{bounds: b}
			cells[key] = a
		} else {
			a.bounds = a.bounds.Union(b)
		}
		a.ids = append(a.ids, s.ID)
		a.sx += c.X
		a.sy += c.Y
	}

	res := ClusterResult{CellSize: size, Clusters: make([]Cluster, 0, len(cells))}
	for key, a := range cells {
		n := float64(len(a.ids))
		res.Clusters = append(res.Clusters, Cluster{
			Cell:   key,
			Center: Point{X: a.sx / n, Y: a.sy / n},
			IDs:    a.ids,
			Bounds: boundsOf(a.bounds),
		})
	}
	slices.SortFunc(res.Clusters, func(a, b Cluster) int {
		if a.Cell[1] != b.Cell[1] {
			return a.Cell[1] - b.Cell[1]
		}
		return a.Cell[0] - b.Cell[0]
	})
	return res
}

// Export encodes the shapes in the requested format.
func Export(in ExportInput) (ExportResult, error) {
	switch strings.ToLower(in.Format) {
	case "", "json":
		data, err := json.Marshal(in.Shapes)
		if err != nil {
			return ExportResult{}, fmt.Errorf("geometry: export json: %w", err)
		}
		return ExportResult{Format: "json", Data: string(data)}, nil
	case "svg":
		return ExportResult{Format: "svg", Data: svg(in.Shapes)}, nil
	}
	return ExportResult{}, fmt.Errorf("geometry: unsupported export format %q", in.Format)
}

func svg(shapes []Shape) string {
	var total geom.Rect
	first := true
	for _, s := range shapes {
		if len(s.Points) == 0 {
			continue
		}
		total = unionBounds(total, BoundsOf(s).Rect(), first)
		first = false
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="%g %g %g %g">`,
		total.X, total.Y, total.Width, total.Height)
	b.WriteByte('\n')
	for _, s := range shapes {
		if len(s.Points) == 0 {
			continue
		}
		tag := "polyline"
		if s.Closed {
			tag = "polygon"
		}
		fmt.Fprintf(&b, `  <%s id="%s" points="`, tag, escapeAttr(s.ID))
		for i, p := range s.Points {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%g,%g", p.X, p.Y)
		}
		b.WriteString(`" fill="none" stroke="black"/>`)
		b.WriteByte('\n')
	}
	b.WriteString("</svg>\n")
	return b.String()
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

func unionBounds(acc, r geom.Rect, first bool) geom.Rect {
	if first {
		return r
	}
	return acc.Union(r)
}
