// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpupresent

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/stage/internal/logging"
	"github.com/gogpu/stage/render"
	"github.com/gogpu/stage/telemetry"
)

// Errors returned by a Presenter.
var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("gpupresent: presenter is closed")

	// ErrNilTarget is returned when New gets no render target.
	ErrNilTarget = errors.New("gpupresent: nil render target")

	// ErrNoTextureCreator is returned when the draw context cannot create
	// textures.
	ErrNoTextureCreator = errors.New("gpupresent: draw context has no texture creator")

	// ErrNotTexture is returned when the created texture cannot be drawn.
	ErrNotTexture = errors.New("gpupresent: created value is not a gpucontext.Texture")
)

type destroyer interface {
	Destroy()
}

// Stats counts presenter work.
type Stats struct {
	Presents  uint64
	Uploads   uint64
	Creates   uint64
	Destroyed uint64
	Bytes     uint64
}

// Presenter presents a render target through gpucontext.
type Presenter struct {
	target   *render.ImageTarget
	provider gpucontext.DeviceProvider
	log      *slog.Logger

	texture any
	// stale is the texture replaced by a resize. It is destroyed only after
	// the next texture creation, when the GPU no longer reads it.
	stale any

	width, height int
	dirty         atomic.Bool
	closed        bool
	packed        []byte
	stats         Stats
}

// New creates a Presenter for target. provider may be nil when the host
// does not expose one; it is only consulted for the surface format.
func New(provider gpucontext.DeviceProvider, target *render.ImageTarget, logger *slog.Logger) (*Presenter, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	p := &Presenter{
		target:   target,
		provider: provider,
		log:      logging.Component(logger, "gpupresent"),
		width:    target.Width(),
		height:   target.Height(),
	}
	p.dirty.Store(true)
	if provider != nil && provider.SurfaceFormat() != target.Format() {
		p.log.Debug("surface format differs from target, relying on texture sampling",
			slog.String("surface", formatName(provider.SurfaceFormat())),
			slog.String("target", formatName(target.Format())))
	}
	return p, nil
}

// MarkDirty flags the target for upload on the next Present. It may be called
// from any goroutine.
func (p *Presenter) MarkDirty() {
	p.dirty.Store(true)
}

// Follow marks the presenter dirty after every frame published through
// subscribe, usually an engine's Subscribe method. It returns the function
// that stops following.
func (p *Presenter) Follow(subscribe func(telemetry.Listener) func()) func() {
	return subscribe(func(ev telemetry.Event) {
		if ev.Kind == telemetry.KindFrame {
			p.MarkDirty()
		}
	})
}

// IsDirty reports whether an upload is pending.
func (p *Presenter) IsDirty() bool {
	return p.dirty.Load()
}

// Texture returns the current texture, or nil before the first Present.
func (p *Presenter) Texture() any {
	return p.texture
}

// Present uploads the target if needed and draws it at (x, y).
func (p *Presenter) Present(dc gpucontext.TextureDrawer, x, y float32) error {
	if p.closed {
		return ErrClosed
	}

	if w, h := p.target.Width(), p.target.Height(); w != p.width || h != p.height {
		p.retire()
		p.width, p.height = w, h
		p.dirty.Store(true)
	}

	if p.texture == nil {
		if err := p.create(dc); err != nil {
			return err
		}
	} else if p.dirty.Load() {
		if err := p.upload(); err != nil {
			return err
		}
	}

	tex, ok := p.texture.(gpucontext.Texture)
	if !ok {
		return ErrNotTexture
	}
	p.stats.Presents++
	return dc.DrawTexture(tex, x, y)
}

func (p *Presenter) create(dc gpucontext.TextureDrawer) error {
	creator := dc.TextureCreator()
	if creator == nil {
		return ErrNoTextureCreator
	}
	data := p.pixels()
	tex, err := creator.NewTextureFromRGBA(p.width, p.height, data)
	if err != nil {
		return fmt.Errorf("gpupresent: create %dx%d texture: %w", p.width, p.height, err)
	}

	// image.RGBA is alpha-premultiplied.
	if pt, ok := any(tex).(interface{ SetPremultiplied(bool) }); ok {
		pt.SetPremultiplied(true)
	}

	p.texture = tex
	p.stats.Creates++
	p.stats.Bytes += uint64(len(data))
	p.dirty.Store(false)

	if p.stale != nil {
		p.destroy(p.stale)
		p.stale = nil
	}
	p.log.Debug("texture created", slog.Int("width", p.width), slog.Int("height", p.height))
	return nil
}

func (p *Presenter) upload() error {
	updater, ok := p.texture.(gpucontext.TextureUpdater)
	if !ok {
		// Recreate when the texture cannot be updated in place.
		p.retire()
		p.dirty.Store(true)
		return nil
	}
	data := p.pixels()
	if err := updater.UpdateData(data); err != nil {
		return fmt.Errorf("gpupresent: update texture: %w", err)
	}
	p.stats.Uploads++
	p.stats.Bytes += uint64(len(data))
	p.dirty.Store(false)
	return nil
}

// retire moves the current texture to stale, destroying an older stale one.
func (p *Presenter) retire() {
	if p.texture == nil {
		return
	}
	if p.stale != nil {
		p.destroy(p.stale)
	}
	p.stale = p.texture
	p.texture = nil
}

func (p *Presenter) destroy(tex any) {
	if d, ok := tex.(destroyer); ok {
		d.Destroy()
		p.stats.Destroyed++
	}
}

// pixels returns tightly packed RGBA rows of the target.
func (p *Presenter) pixels() []byte {
	rowBytes := p.width * 4
	if p.target.Stride() == rowBytes {
		return p.target.Pixels()[:rowBytes*p.height]
	}
	n := rowBytes * p.height
	if cap(p.packed) < n {
		p.packed = make([]byte, n)
	}
	p.packed = p.packed[:n]
	src := p.target.Pixels()
	stride := p.target.Stride()
	for y := range p.height {
		copy(p.packed[y*rowBytes:(y+1)*rowBytes], src[y*stride:y*stride+rowBytes])
	}
	return p.packed
}

// Stats returns the presenter counters.
func (p *Presenter) Stats() Stats {
	return p.stats
}

// Close destroys the textures. It is idempotent.
func (p *Presenter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.stale != nil {
		p.destroy(p.stale)
		p.stale = nil
	}
	if p.texture != nil {
		p.destroy(p.texture)
		p.texture = nil
	}
	p.provider = nil
	return nil
}

func formatName(f gputypes.TextureFormat) string {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case gputypes.TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	}
	return fmt.Sprintf("format(%d)", f)
}
