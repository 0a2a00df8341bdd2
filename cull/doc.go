// Package cull selects the visible, depth-sorted subset of scene objects for
// a viewport and picks a level of detail per object.
//
// The Culler expands the viewport by a screen-space padding, queries an
// Index, and drops hidden and culled objects. Per-object decisions are
// memoized under a generation counter: any object mutation or viewport move
// beyond Tolerance starts a new generation, which invalidates the memo
// wholesale without touching it. The memo is cleared outright every
// MemoClearEvery generations so it cannot grow without bound.
//
// When the cull rectangle moved less than Tolerance since the last query and
// no object changed, VisibleObjects returns the previous result unchanged.
package cull
