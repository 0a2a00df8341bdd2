package geom

import "image/color"

// Color is a straight-alpha RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// RGBA creates a color from components in [0, 1].
func RGBA(r, g, b, a float64) Color {
	return Color{R: r, G: g, B: b, A: a}
}

// RGBA implements color.Color, returning premultiplied 16-bit components.
func (c Color) RGBA() (r, g, b, a uint32) {
	cl := c.clamped()
	a = uint32(cl.A * 0xffff)
	r = uint32(cl.R * cl.A * 0xffff)
	g = uint32(cl.G * cl.A * 0xffff)
	b = uint32(cl.B * cl.A * 0xffff)
	return r, g, b, a
}

// NRGBA converts to an 8-bit straight-alpha color.
func (c Color) NRGBA() color.NRGBA {
	cl := c.clamped()
	//nolint:gosec // G115: components are clamped to [0, 1]
	return color.NRGBA{
		R: uint8(cl.R*255 + 0.5),
		G: uint8(cl.G*255 + 0.5),
		B: uint8(cl.B*255 + 0.5),
		A: uint8(cl.A*255 + 0.5),
	}
}

// WithAlpha returns a copy of c with alpha replaced.
func (c Color) WithAlpha(a float64) Color {
	c.A = a
	return c
}

func (c Color) clamped() Color {
	return Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B), A: clamp01(c.A)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Reset sets the color to transparent black.
func (c *Color) Reset() { *c = Color{} }
