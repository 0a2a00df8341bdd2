// Package geom provides the value types shared by stage: rectangles, points,
// affine matrices, colors and paths.
//
// Every type has a Reset method so it can live in a pool.Pool. Reset leaves
// no references to caller data behind; a pooled value never leaks the state
// of its previous user.
//
// Coordinates follow the usual computer graphics convention: origin at the
// top-left, X grows right, Y grows down.
package geom
