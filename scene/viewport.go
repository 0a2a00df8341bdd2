package scene

import "github.com/gogpu/stage/geom"

// Viewport is the camera over the world.
//
// X and Y are the world coordinates of the top-left corner. Width and Height
// are the screen size in pixels. Scale is pixels per world unit, so the
// visible world extent is Width/Scale by Height/Scale.
type Viewport struct {
	X, Y          float64
	Width, Height float64
	Scale         float64
}

// scale returns Scale, treating non-positive values as 1.
func (v Viewport) scale() float64 {
	if v.Scale <= 0 {
		return 1
	}
	return v.Scale
}

// WorldRect returns the visible world rectangle.
func (v Viewport) WorldRect() geom.Rect {
	s := v.scale()
	return geom.R(v.X, v.Y, v.Width/s, v.Height/s)
}

// ScreenRect returns the screen rectangle, always anchored at the origin.
func (v Viewport) ScreenRect() geom.Rect {
	return geom.R(0, 0, v.Width, v.Height)
}

// Area returns the screen area in square pixels.
func (v Viewport) Area() float64 {
	return v.Width * v.Height
}

// Transform returns the world-to-screen matrix.
func (v Viewport) Transform() geom.Matrix {
	s := v.scale()
	return geom.Scale(s, s).Multiply(geom.Translate(-v.X, -v.Y))
}

// ToScreen maps a world rectangle to screen pixels.
func (v Viewport) ToScreen(r geom.Rect) geom.Rect {
	s := v.scale()
	return geom.R((r.X-v.X)*s, (r.Y-v.Y)*s, r.Width*s, r.Height*s)
}

// ToWorld maps a screen point to world coordinates.
func (v Viewport) ToWorld(x, y float64) geom.Point {
	s := v.scale()
	return geom.Pt(v.X+x/s, v.Y+y/s)
}

// ViewportPatch is a partial viewport update. Nil fields keep their value.
type ViewportPatch struct {
	X, Y, Width, Height, Scale *float64
}

// Apply returns v with the patch applied.
func (p ViewportPatch) Apply(v Viewport) Viewport {
	if p.X != nil {
		v.X = *p.X
	}
	if p.Y != nil {
		v.Y = *p.Y
	}
	if p.Width != nil {
		v.Width = *p.Width
	}
	if p.Height != nil {
		v.Height = *p.Height
	}
	if p.Scale != nil {
		v.Scale = *p.Scale
	}
	return v
}

// ScaleChanged reports whether the patch sets a scale different from v's.
func (p ViewportPatch) ScaleChanged(v Viewport) bool {
	return p.Scale != nil && *p.Scale != v.Scale
}
