// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package render schedules incremental repaints of a canvas.
//
// The Scheduler accumulates dirty rectangles between frames, merges them, and
// drives a paint callback once per frame boundary. It has no knowledge of
// shapes: painting is delegated to a PaintFunc that receives a Context
// clipped to the region being repainted.
//
// # States
//
//	Idle -> Dirty -> Requested -> Rendering -> Idle
//
// MarkDirty on an idle scheduler requests exactly one frame from the
// FrameRequester. Marks that arrive while a frame is requested or rendering
// join the pending set and are served by the same or the next frame.
//
// # Region merging
//
// Pending regions are clamped to the canvas and merged pairwise to a fixed
// point whenever they overlap or lie closer than MergeThreshold pixels. If
// more than MaxRegions survive, the frame collapses into a single full
// redraw. A region that covers the whole canvas also triggers a full redraw.
//
// # Adaptive quality
//
// The frame callback tracks the time between frames. A frame later than 1.5x
// the target interval lowers the quality by QualityStep, down to MinQuality.
// A frame earlier than 0.9x the target eases the quality back to 1 over
// RecoveryDuration. Frames arriving sooner than 0.8x the target are skipped
// and their dirt is dropped.
//
// Render bypasses frame skip and quality control; it paints synchronously.
package render
