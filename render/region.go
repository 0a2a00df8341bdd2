// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"time"

	"github.com/gogpu/stage/geom"
)

// Region is a pending dirty rectangle.
type Region struct {
	Rect geom.Rect
	Time time.Time
}

// Reset clears the region for reuse.
func (r *Region) Reset() {
	*r = Region{}
}

// MergeRegions merges rects in place until no two of them overlap or lie
// closer than threshold, and returns the shortened slice.
func MergeRegions(rects []geom.Rect, threshold float64) []geom.Rect {
	for {
		merged := false
		for i := 0; i < len(rects); i++ {
			for j := i + 1; j < len(rects); {
				if rects[i].Intersects(rects[j]) || rects[i].Gap(rects[j]) < threshold {
					rects[i] = rects[i].Union(rects[j])
					last := len(rects) - 1
					rects[j] = rects[last]
					rects = rects[:last]
					merged = true
					continue
				}
				j++
			}
		}
		if !merged {
			return rects
		}
	}
}

// clampRegions clips rects to canvas in place, dropping those that leave
// nothing to repaint.
func clampRegions(rects []geom.Rect, canvas geom.Rect) []geom.Rect {
	out := rects[:0]
	for _, r := range rects {
		if c, ok := r.Intersect(canvas); ok && !c.IsEmpty() {
			out = append(out, c)
		}
	}
	return out
}
