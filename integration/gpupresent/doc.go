// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gpupresent uploads a stage render target to a GPU texture and
// draws it through gpucontext.
//
// The stage scheduler paints on the CPU into a render.ImageTarget. A
// Presenter owns the matching GPU texture: it is created lazily on the first
// Present, updated in place when the target was repainted, and recreated
// when the target changes size.
//
//	rendered := engine.Render()
//	if rendered {
//	    presenter.MarkDirty()
//	}
//	app.OnDraw(func(dc *gogpu.Context) {
//	    presenter.Present(dc.AsTextureDrawer(), 0, 0)
//	})
//
// A Presenter is driven from the frame goroutine and is not safe for
// concurrent use.
package gpupresent
