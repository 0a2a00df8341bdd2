// Package stage is the rendering and resource-management core of an
// interactive 2D canvas editor.
//
// # Overview
//
// An Engine owns every service the canvas needs and wires them together:
//
//   - a region quadtree indexing object bounds (package spatial)
//   - a viewport culler and level-of-detail selector (package cull)
//   - a dirty-region render scheduler with adaptive quality (package render)
//   - value-object pools for the frame path (packages pool, geom)
//   - cache tiers for decoded assets (packages cache, assets)
//   - a memory-pressure monitor that evicts from those caches (package memory)
//   - an optional worker pool for CPU-heavy geometry (package worker)
//   - a telemetry hub and Prometheus collectors (package telemetry)
//
// # Quick Start
//
//	frames := &render.ManualFrames{}
//	e, err := stage.New(800, 600, stage.WithFrames(frames))
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	e.AddObject(&scene.Object{
//	    ID:      1,
//	    Rect:    geom.R(100, 100, 50, 50),
//	    Painter: myPainter,
//	})
//	frames.Step(time.Now()) // paints the dirty rectangle
//
// # Invalidation
//
// Adding, removing or moving an object marks its old and new screen
// rectangles dirty. Changing the viewport forces a full redraw. The host
// may also call MarkDirty or ForceFullRedraw directly.
//
// # Coordinate System
//
// Object bounds are in world units. The viewport maps world to canvas
// pixels: X and Y are the world position of the top-left corner and Scale
// is pixels per world unit. Dirty rectangles are in canvas pixels.
//
// # Concurrency
//
// All Engine methods are safe for concurrent use. Painters run during
// Render with the object registry read-locked, so they must not add,
// remove or update objects.
package stage
