// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpupresent

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/render"
)

type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

type mockQueue struct{}

type mockAdapter struct{}

type mockProvider struct {
	format gputypes.TextureFormat
}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return m.format }

type fakeTexture struct {
	width, height int
	data          []byte
	updates       int
	destroyed     bool
	premultiplied bool
	failUpdate    error
}

func (t *fakeTexture) Width() int  { return t.width }
func (t *fakeTexture) Height() int { return t.height }
func (t *fakeTexture) Destroy()    { t.destroyed = true }

func (t *fakeTexture) SetPremultiplied(v bool) { t.premultiplied = v }

func (t *fakeTexture) UpdateData(data []byte) error {
	if t.failUpdate != nil {
		return t.failUpdate
	}
	t.data = append(t.data[:0], data...)
	t.updates++
	return nil
}

type fakeCreator struct {
	created []*fakeTexture
	fail    error
}

func (c *fakeCreator) NewTextureFromRGBA(width, height int, data []byte) (gpucontext.Texture, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	tex := &fakeTexture{width: width, height: height, data: append([]byte(nil), data...)}
	c.created = append(c.created, tex)
	return tex, nil
}

type fakeDrawer struct {
	creator *fakeCreator
	drawn   []gpucontext.Texture
	x, y    float32
}

func (d *fakeDrawer) DrawTexture(tex gpucontext.Texture, x, y float32) error {
	d.drawn = append(d.drawn, tex)
	d.x, d.y = x, y
	return nil
}

func (d *fakeDrawer) TextureCreator() gpucontext.TextureCreator {
	if d.creator == nil {
		return nil
	}
	return d.creator
}

func newDrawer() *fakeDrawer { return &fakeDrawer{creator: &fakeCreator{}} }

// =============================================================================
// Presentation
// =============================================================================

func TestNew(t *testing.T) {
	if _, err := New(nil, nil, nil); !errors.Is(err, ErrNilTarget) {
		t.Errorf("New(nil target) error = %v, want ErrNilTarget", err)
	}

	p, err := New(&mockProvider{format: gputypes.TextureFormatBGRA8Unorm}, render.NewImageTarget(4, 4), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !p.IsDirty() {
		t.Error("new presenter should be dirty")
	}
	if p.Texture() != nil {
		t.Error("texture should be created lazily")
	}
}

func TestPresent_CreatesThenUpdates(t *testing.T) {
	target := render.NewImageTarget(2, 2)
	target.Clear(color.RGBA{255, 0, 0, 255})
	p, _ := New(nil, target, nil)
	dc := newDrawer()

	if err := p.Present(dc, 10, 20); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if len(dc.creator.created) != 1 {
		t.Fatalf("created %d textures, want 1", len(dc.creator.created))
	}
	tex := dc.creator.created[0]
	if tex.width != 2 || tex.height != 2 {
		t.Errorf("texture size = %dx%d, want 2x2", tex.width, tex.height)
	}
	if !tex.premultiplied {
		t.Error("texture should be marked premultiplied")
	}
	if tex.data[0] != 255 || tex.data[3] != 255 {
		t.Errorf("first pixel = %v, want opaque red", tex.data[:4])
	}
	if dc.x != 10 || dc.y != 20 || len(dc.drawn) != 1 {
		t.Errorf("drawn at (%v,%v) %d times", dc.x, dc.y, len(dc.drawn))
	}

	// Clean frame: no upload.
	if err := p.Present(dc, 0, 0); err != nil {
		t.Fatal(err)
	}
	if tex.updates != 0 {
		t.Errorf("updates = %d, want 0 for a clean frame", tex.updates)
	}

	target.Clear(color.RGBA{0, 0, 255, 255})
	p.MarkDirty()
	if err := p.Present(dc, 0, 0); err != nil {
		t.Fatal(err)
	}
	if tex.updates != 1 || tex.data[2] != 255 {
		t.Errorf("updates = %d, pixel = %v; want one update to blue", tex.updates, tex.data[:4])
	}

	st := p.Stats()
	if st.Presents != 3 || st.Creates != 1 || st.Uploads != 1 || st.Bytes != 32 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestPresent_ResizeDefersDestroy(t *testing.T) {
	target := render.NewImageTarget(2, 2)
	p, _ := New(nil, target, nil)
	dc := newDrawer()

	if err := p.Present(dc, 0, 0); err != nil {
		t.Fatal(err)
	}
	first := dc.creator.created[0]

	target.Resize(3, 1)
	dc.creator.fail = errors.New("device lost")
	if err := p.Present(dc, 0, 0); err == nil {
		t.Fatal("Present() should fail when creation fails")
	}
	if first.destroyed {
		t.Error("old texture destroyed before a replacement exists")
	}

	dc.creator.fail = nil
	if err := p.Present(dc, 0, 0); err != nil {
		t.Fatal(err)
	}
	if !first.destroyed {
		t.Error("old texture should be destroyed after the replacement is created")
	}
	second := dc.creator.created[1]
	if second.width != 3 || second.height != 1 {
		t.Errorf("new texture = %dx%d, want 3x1", second.width, second.height)
	}
}

func TestPresent_Errors(t *testing.T) {
	p, _ := New(nil, render.NewImageTarget(1, 1), nil)

	if err := p.Present(&fakeDrawer{}, 0, 0); !errors.Is(err, ErrNoTextureCreator) {
		t.Errorf("error = %v, want ErrNoTextureCreator", err)
	}

	dc := newDrawer()
	if err := p.Present(dc, 0, 0); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	dc.creator.created[0].failUpdate = boom
	p.MarkDirty()
	if err := p.Present(dc, 0, 0); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped update failure", err)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !dc.creator.created[0].destroyed {
		t.Error("Close should destroy the texture")
	}
	if err := p.Close(); err != nil {
		t.Error("Close should be idempotent")
	}
	if err := p.Present(dc, 0, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}

func TestPixels_PacksStridedTarget(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 4, 2))
	big.SetRGBA(1, 1, color.RGBA{9, 8, 7, 255})
	sub := big.SubImage(image.Rect(1, 0, 3, 2)).(*image.RGBA)

	p, _ := New(nil, render.NewImageTargetFrom(sub), nil)
	got := p.pixels()
	if len(got) != 2*2*4 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	// (1,1) in big is (0,1) in sub.
	if got[8] != 9 || got[9] != 8 || got[10] != 7 {
		t.Errorf("pixel (0,1) = %v, want [9 8 7 255]", got[8:12])
	}
}

// =============================================================================
// Engine
// =============================================================================

func TestFollow_UploadsAfterEngineFrames(t *testing.T) {
	e, err := stage.New(4, 4)
	if err != nil {
		t.Fatalf("stage.New() error = %v", err)
	}
	defer e.Close()

	p, _ := New(nil, e.Target(), nil)
	unfollow := p.Follow(e.Subscribe)
	dc := newDrawer()

	if err := p.Present(dc, 0, 0); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if p.IsDirty() {
		t.Fatal("presenter should be clean after the first Present")
	}

	if !e.Render() {
		t.Fatal("the initial full redraw should paint")
	}
	if !p.IsDirty() {
		t.Fatal("a painted frame should mark the presenter dirty")
	}
	if err := p.Present(dc, 0, 0); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if got := dc.creator.created[0].updates; got != 1 {
		t.Errorf("updates = %d, want 1", got)
	}

	unfollow()
	e.ForceFullRedraw()
	e.Render()
	if p.IsDirty() {
		t.Error("frames after unfollow should not mark the presenter dirty")
	}
}
