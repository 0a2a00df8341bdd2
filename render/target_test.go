// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/stage/geom"
)

func TestImageTarget(t *testing.T) {
	target := NewImageTarget(40, 30)

	if target.Width() != 40 || target.Height() != 30 {
		t.Errorf("size = %dx%d, want 40x30", target.Width(), target.Height())
	}
	if target.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("Format() = %v", target.Format())
	}
	if target.Stride() != 40*4 || len(target.Pixels()) != 40*30*4 {
		t.Errorf("stride = %d, pixels = %d", target.Stride(), len(target.Pixels()))
	}

	c := color.RGBA{1, 2, 3, 255}
	target.Clear(c)
	if got := target.Image().RGBAAt(39, 29); got != c {
		t.Errorf("pixel after Clear = %v, want %v", got, c)
	}

	target.Resize(10, 10)
	if target.Image().Bounds() != image.Rect(0, 0, 10, 10) {
		t.Errorf("bounds after Resize = %v", target.Image().Bounds())
	}
}

func TestImageTargetFrom(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if NewImageTargetFrom(img).Image() != img {
		t.Error("NewImageTargetFrom should share the image")
	}
}

func TestContextQualityFlags(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	tests := []struct {
		quality   float64
		smoothing bool
		shadows   bool
		interp    draw.Interpolator
	}{
		{1, true, true, draw.BiLinear},
		{0.9, true, false, draw.ApproxBiLinear},
		{0.75, false, false, draw.NearestNeighbor},
		{0.5, false, false, draw.NearestNeighbor},
	}
	for _, tt := range tests {
		ctx := newContext(img, img.Bounds(), true, tt.quality)
		if ctx.Smoothing != tt.smoothing || ctx.Shadows != tt.shadows {
			t.Errorf("quality %v: smoothing=%v shadows=%v", tt.quality, ctx.Smoothing, ctx.Shadows)
		}
		if ctx.Interpolator() != tt.interp {
			t.Errorf("quality %v: unexpected interpolator", tt.quality)
		}
	}
}

func TestContextFillRespectsClip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	ctx := newContext(img, image.Rect(5, 5, 10, 10), false, 1)

	ctx.Fill(img.Bounds(), color.RGBA{255, 0, 0, 255})
	if got := img.RGBAAt(7, 7); got.R != 255 {
		t.Errorf("inside clip = %v", got)
	}
	if got := img.RGBAAt(2, 2); got.A != 0 {
		t.Errorf("outside clip = %v, want untouched", got)
	}
}

func TestContextFillRectUsesTransform(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	ctx := newContext(img, img.Bounds(), true, 1)
	ctx.Transform = geom.Scale(2, 2)

	ctx.FillRect(geom.R(2, 2, 2, 2), color.RGBA{0, 0, 255, 255})
	if got := img.RGBAAt(5, 5); got.B != 255 {
		t.Errorf("transformed fill missing at (5,5): %v", got)
	}
	if got := img.RGBAAt(2, 2); got.A != 0 {
		t.Errorf("untransformed location painted: %v", got)
	}
}

func TestContextDrawImage(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.RGBA{0, 255, 0, 255}), image.Point{}, draw.Src)

	ctx := newContext(dst, dst.Bounds(), true, 0.5)
	ctx.DrawImage(image.Rect(0, 0, 8, 8), src)
	if got := dst.RGBAAt(6, 6); got.G != 255 {
		t.Errorf("scaled image missing: %v", got)
	}
	if got := dst.RGBAAt(9, 9); got.A != 0 {
		t.Errorf("outside destination painted: %v", got)
	}
}
