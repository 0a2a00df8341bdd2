package spatial

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/stage/geom"
)

type box struct {
	id     int
	bounds geom.Rect
}

func (b *box) Bounds() geom.Rect { return b.bounds }

func newTree(maxObjects, maxLevels int) *Quadtree[*box] {
	return New[*box](Config{
		Bounds:     geom.R(0, 0, 1000, 1000),
		MaxObjects: maxObjects,
		MaxLevels:  maxLevels,
	})
}

func TestQuadtreeCreation(t *testing.T) {
	q := New[*box](Config{Bounds: geom.R(0, 0, 100, 100)})
	require.Equal(t, 0, q.Len())
	require.Equal(t, geom.R(0, 0, 100, 100), q.Bounds())

	st := q.Stats()
	require.Equal(t, 1, st.Nodes)
	require.Equal(t, 0, st.Depth)
}

func TestQuadtreeQueryFindsEveryInsertedItem(t *testing.T) {
	q := newTree(4, 6)
	rng := rand.New(rand.NewPCG(1, 2))

	boxes := make([]*box, 500)
	for i := range boxes {
		boxes[i] = &box{id: i, bounds: geom.R(
			rng.Float64()*990, rng.Float64()*990,
			rng.Float64()*40, rng.Float64()*40,
		)}
		q.Insert(boxes[i])
	}
	require.Equal(t, 500, q.Len())

	for _, b := range boxes {
		assert.Contains(t, q.Query(b.bounds), b, "query by own bounds must return box %d", b.id)
	}
}

func TestQuadtreeSubdivision(t *testing.T) {
	q := newTree(2, 4)

	q.Insert(&box{bounds: geom.R(10, 10, 5, 5)})
	q.Insert(&box{bounds: geom.R(20, 20, 5, 5)})
	require.Equal(t, 1, q.Stats().Nodes, "no split at MaxObjects")

	q.Insert(&box{bounds: geom.R(700, 700, 5, 5)})
	st := q.Stats()
	require.Equal(t, 5, st.Nodes, "root splits exactly once into four children")
	require.Equal(t, 1, st.Depth)

	// Items that fit a quadrant were pushed down.
	require.Empty(t, q.root.items)
	require.Len(t, q.root.children[topLeft].items, 2)
	require.Len(t, q.root.children[bottomRight].items, 1)
}

func TestQuadtreeStraddlingItemStaysAtParent(t *testing.T) {
	q := newTree(1, 4)

	q.Insert(&box{bounds: geom.R(10, 10, 5, 5)})
	straddler := &box{bounds: geom.R(490, 490, 20, 20)}
	q.Insert(straddler)

	require.True(t, q.root.split)
	require.Contains(t, q.root.items, straddler)
	require.Equal(t, q.root, q.where[straddler])

	require.Contains(t, q.Query(geom.R(505, 505, 1, 1)), straddler)
}

func TestQuadtreeFullSpanAndOutsideItems(t *testing.T) {
	q := newTree(1, 4)

	full := &box{bounds: geom.R(0, 0, 1000, 1000)}
	outside := &box{bounds: geom.R(-500, -500, 10, 10)}
	q.Insert(&box{bounds: geom.R(1, 1, 1, 1)})
	q.Insert(full)
	q.Insert(outside)

	require.Equal(t, q.root, q.where[full])
	require.Equal(t, q.root, q.where[outside])
	require.Contains(t, q.Query(geom.R(-495, -495, 1, 1)), outside)
	require.Contains(t, q.Query(geom.R(800, 800, 1, 1)), full)
}

func TestQuadtreeDegenerateItem(t *testing.T) {
	q := newTree(2, 4)
	dot := &box{bounds: geom.R(250, 250, 0, 0)}
	for i := 0; i < 5; i++ {
		q.Insert(&box{bounds: geom.R(float64(i*10), 0, 2, 2)})
	}
	q.Insert(dot)

	require.Contains(t, q.Query(dot.bounds), dot)
	require.Contains(t, q.Query(geom.R(200, 200, 50, 50)), dot)
}

func TestQuadtreeInvertedBounds(t *testing.T) {
	q := newTree(2, 4)
	for i := 0; i < 5; i++ {
		q.Insert(&box{bounds: geom.R(float64(i*10), 0, 2, 2)})
	}
	// Dragged up and to the left from (100, 100).
	drag := &box{bounds: geom.R(100, 100, -20, -20)}
	q.Insert(drag)

	require.Contains(t, q.Query(drag.bounds), drag)
	require.Contains(t, q.Query(geom.R(85, 85, 1, 1)), drag)
	require.Contains(t, q.Query(geom.R(70, 70, 40, 40)), drag)
	require.NotContains(t, q.Query(geom.R(101, 101, 10, 10)), drag)
}

func TestQuadtreeRemove(t *testing.T) {
	q := newTree(2, 4)
	a := &box{id: 1, bounds: geom.R(10, 10, 5, 5)}
	b := &box{id: 2, bounds: geom.R(600, 600, 5, 5)}
	c := &box{id: 3, bounds: geom.R(20, 20, 5, 5)}
	q.Insert(a)
	q.Insert(b)
	q.Insert(c)

	require.True(t, q.Remove(b))
	require.False(t, q.Remove(b), "second remove reports absence")
	require.False(t, q.Remove(&box{}), "unknown item")
	require.Equal(t, 2, q.Len())
	require.NotContains(t, q.Query(geom.R(0, 0, 1000, 1000)), b)
}

func TestQuadtreeUpdateAfterBoundsChange(t *testing.T) {
	q := newTree(2, 4)
	for i := 0; i < 8; i++ {
		q.Insert(&box{bounds: geom.R(float64(i)*5, float64(i)*5, 2, 2)})
	}
	moving := &box{bounds: geom.R(10, 10, 5, 5)}
	q.Insert(moving)

	moving.bounds = geom.R(900, 900, 5, 5)
	q.Update(moving)

	require.Contains(t, q.Query(geom.R(890, 890, 20, 20)), moving)
	require.NotContains(t, q.Query(geom.R(0, 0, 100, 100)), moving)
	require.Equal(t, 9, q.Len())
}

func TestQuadtreeReinsertIsUpdate(t *testing.T) {
	q := newTree(2, 4)
	b := &box{bounds: geom.R(10, 10, 5, 5)}
	q.Insert(b)
	q.Insert(b)

	require.Equal(t, 1, q.Len())
	require.Len(t, q.Query(b.bounds), 1)
}

func TestQuadtreeMaxLevels(t *testing.T) {
	q := newTree(1, 3)
	for i := 0; i < 50; i++ {
		q.Insert(&box{bounds: geom.R(1, 1, 0.1, 0.1)})
	}
	require.LessOrEqual(t, q.Stats().Depth, 3)
	require.Equal(t, 50, q.Len())
}

func TestQuadtreeClearPoolsNodes(t *testing.T) {
	q := newTree(2, 6)
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		q.Insert(&box{bounds: geom.R(rng.Float64()*999, rng.Float64()*999, 1, 1)})
	}
	nodes := q.Stats().Nodes
	require.Greater(t, nodes, 1)

	q.Clear()
	st := q.Stats()
	require.Equal(t, 0, st.Items)
	require.Equal(t, 1, st.Nodes)
	require.GreaterOrEqual(t, st.PooledNodes, 4, "released nodes are kept for reuse")
	require.Empty(t, q.Query(geom.R(0, 0, 1000, 1000)))
	require.Zero(t, q.nodes.Active())

	hits := q.nodes.Stats().Hits
	for i := 0; i < 200; i++ {
		q.Insert(&box{bounds: geom.R(rng.Float64()*999, rng.Float64()*999, 1, 1)})
	}
	require.Greater(t, q.nodes.Stats().Hits, hits, "rebuild draws nodes from the pool")
}

// Scenario: 10,000 objects over a 10,000 x 10,000 world, 500 x 500 query.
func TestQuadtreeLargeWorldQueryIsBounded(t *testing.T) {
	q := New[*box](Config{Bounds: geom.R(0, 0, 10000, 10000)})
	rng := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 10000; i++ {
		q.Insert(&box{id: i, bounds: geom.R(
			rng.Float64()*9950, rng.Float64()*9950,
			5+rng.Float64()*45, 5+rng.Float64()*45,
		)})
	}

	view := geom.R(2000, 2000, 500, 500)
	got := q.Query(view)
	require.NotEmpty(t, got)
	require.Less(t, len(got), 500, "a 500x500 window sees a small fraction of the world")
	for _, b := range got {
		require.True(t, b.bounds.Intersects(view))
	}
}

func BenchmarkQuadtreeQuery(b *testing.B) {
	q := New[*box](Config{Bounds: geom.R(0, 0, 10000, 10000)})
	rng := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 10000; i++ {
		q.Insert(&box{bounds: geom.R(rng.Float64()*9950, rng.Float64()*9950, 20, 20)})
	}
	view := geom.R(4000, 4000, 800, 600)
	buf := make([]*box, 0, 256)

	b.ReportAllocs()
	for b.Loop() {
		buf = q.QueryInto(buf[:0], view)
	}
}
