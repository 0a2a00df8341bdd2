// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"

	"github.com/gogpu/stage/geom"
)

// Quality levels at which optional effects switch on.
const (
	smoothingQuality = 0.75
	shadowQuality    = 0.95
)

// PaintFunc paints into ctx. region is the dirty canvas rectangle being
// repainted, or nil for a full redraw.
type PaintFunc func(ctx *Context, region *geom.Rect)

// Context is handed to a PaintFunc for one paint call.
type Context struct {
	// Dst is the image to paint into. For partial redraws it is a sub-image
	// whose bounds equal Clip, so writes outside the region are dropped.
	Dst *image.RGBA

	// Clip is the pixel rectangle being repainted.
	Clip image.Rectangle

	// Full reports whether this is a full redraw.
	Full bool

	// Quality is the adaptive quality level in [MinQuality, 1].
	Quality float64

	// Smoothing is set when Quality > 0.75.
	Smoothing bool

	// Shadows is set when Quality >= 0.95.
	Shadows bool

	// Frame is the frame sequence number.
	Frame uint64

	// Time is the frame timestamp.
	Time time.Time

	// Transform maps world coordinates to canvas pixels. Identity unless
	// the scheduler owner sets it.
	Transform geom.Matrix
}

func newContext(dst *image.RGBA, clip image.Rectangle, full bool, quality float64) *Context {
	return &Context{
		Dst:       dst,
		Clip:      clip,
		Full:      full,
		Quality:   quality,
		Smoothing: quality > smoothingQuality,
		Shadows:   quality >= shadowQuality,
		Transform: geom.Identity(),
	}
}

// Interpolator returns the image scaler matching the current quality.
func (c *Context) Interpolator() draw.Interpolator {
	switch {
	case c.Shadows:
		return draw.BiLinear
	case c.Smoothing:
		return draw.ApproxBiLinear
	}
	return draw.NearestNeighbor
}

// Fill paints r with c, composited over the existing pixels.
func (c *Context) Fill(r image.Rectangle, col color.Color) {
	r = r.Intersect(c.Clip)
	if r.Empty() {
		return
	}
	draw.Draw(c.Dst, r, image.NewUniform(col), image.Point{}, draw.Over)
}

// FillRect fills a world rectangle after applying Transform.
func (c *Context) FillRect(r geom.Rect, col color.Color) {
	c.Fill(c.Transform.TransformRect(r).ImageRect(), col)
}

// DrawImage scales src into the canvas rectangle dst.
func (c *Context) DrawImage(dst image.Rectangle, src image.Image) {
	if dst.Intersect(c.Clip).Empty() {
		return
	}
	c.Interpolator().Scale(c.Dst, dst, src, src.Bounds(), draw.Over, nil)
}
