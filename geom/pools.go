package geom

import (
	"log/slog"

	"github.com/gogpu/stage/pool"
)

// Pools groups the standard value-object pools used on the frame path.
type Pools struct {
	Rects    *pool.Pool[*Rect]
	Points   *pool.Pool[*Point]
	Matrices *pool.Pool[*Matrix]
	Colors   *pool.Pool[*Color]
	Paths    *pool.Pool[*Path]
}

// NewPools creates the standard pools with the given sizing.
// A zero initial or max size selects the pool package defaults.
func NewPools(initial, max int, logger *slog.Logger) *Pools {
	return &Pools{
		Rects: pool.New(pool.Config[*Rect]{
			Name: "rect", New: func() *Rect { return new(Rect) },
			InitialSize: initial, MaxSize: max, Logger: logger,
		}),
		Points: pool.New(pool.Config[*Point]{
			Name: "point", New: func() *Point { return new(Point) },
			InitialSize: initial, MaxSize: max, Logger: logger,
		}),
		Matrices: pool.New(pool.Config[*Matrix]{
			Name: "matrix", New: func() *Matrix { m := Identity(); return &m },
			InitialSize: initial, MaxSize: max, Logger: logger,
		}),
		Colors: pool.New(pool.Config[*Color]{
			Name: "color", New: func() *Color { return new(Color) },
			InitialSize: initial, MaxSize: max, Logger: logger,
		}),
		Paths: pool.New(pool.Config[*Path]{
			Name: "path", New: NewPath,
			InitialSize: initial, MaxSize: max, Logger: logger,
		}),
	}
}

// Stats returns the stats of every pool.
func (p *Pools) Stats() []pool.Stats {
	return []pool.Stats{
		p.Rects.Stats(),
		p.Points.Stats(),
		p.Matrices.Stats(),
		p.Colors.Stats(),
		p.Paths.Stats(),
	}
}
