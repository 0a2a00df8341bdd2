// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
)

// Target is where a Scheduler paints.
//
// Image may return a different image after a resize; the scheduler notices
// the new bounds and repaints in full.
type Target interface {
	Image() *image.RGBA
}

// ImageTarget is a CPU canvas backed by an *image.RGBA.
// Resize may be called from any goroutine while a frame is painting; the
// frame finishes on the old image.
//
//	target := render.NewImageTarget(800, 600)
//	sched := render.NewScheduler(target, paint, frames, render.DefaultConfig())
type ImageTarget struct {
	img atomic.Pointer[image.RGBA]
}

// NewImageTarget allocates a width by height canvas.
func NewImageTarget(width, height int) *ImageTarget {
	return NewImageTargetFrom(image.NewRGBA(image.Rect(0, 0, width, height)))
}

// NewImageTargetFrom wraps img. The pixels are shared, not copied.
func NewImageTargetFrom(img *image.RGBA) *ImageTarget {
	t := &ImageTarget{}
	t.img.Store(img)
	return t
}

// Width returns the canvas width in pixels.
func (t *ImageTarget) Width() int {
	return t.Image().Bounds().Dx()
}

// Height returns the canvas height in pixels.
func (t *ImageTarget) Height() int {
	return t.Image().Bounds().Dy()
}

// Format reports the GPU format matching the pixel layout.
func (t *ImageTarget) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Pixels returns the live pixel buffer.
func (t *ImageTarget) Pixels() []byte {
	return t.Image().Pix
}

// Stride returns the row pitch in bytes.
func (t *ImageTarget) Stride() int {
	return t.Image().Stride
}

// Image returns the current canvas image.
func (t *ImageTarget) Image() *image.RGBA {
	return t.img.Load()
}

// Clear fills the canvas with c.
func (t *ImageTarget) Clear(c color.Color) {
	img := t.Image()
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Resize swaps in a blank canvas of the new size. A no-op when the size is
// unchanged.
func (t *ImageTarget) Resize(width, height int) {
	if b := t.Image().Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	t.img.Store(image.NewRGBA(image.Rect(0, 0, width, height)))
}

var _ Target = (*ImageTarget)(nil)
