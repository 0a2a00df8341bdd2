// Package geometry implements the geometry worker: batch operations on
// annotation shapes that are too slow for the frame loop.
//
// Handler dispatches on the request type:
//
//	process   drop repeated vertices, apply an optional transform, compute bounds
//	analyze   perimeter, area, centroid and bounds per shape, plus totals
//	simplify  Ramer-Douglas-Peucker with a distance tolerance
//	cluster   group shapes by centroid on a uniform grid
//	export    encode shapes as JSON or SVG
//
// Every operation is a pure function of its input, so the same handler
// serves both in-process and subprocess workers.
package geometry
