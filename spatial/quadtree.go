// Package spatial provides a region quadtree over axis-aligned bounding boxes.
//
// An item lives in the deepest node whose bounds fully contain it. Items that
// straddle a quadrant boundary stay at the parent; items outside the world
// bounds stay at the root. Nodes subdivide once their local item count
// exceeds MaxObjects, down to MaxLevels.
//
// Subtrees are never merged back after removals. A long sequence of inserts
// and deletes can leave a sparse, deep tree; Clear rebuilds from scratch.
//
// Thread safety: a Quadtree is not safe for concurrent use.
package spatial

import (
	"log/slog"
	"slices"

	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/internal/logging"
	"github.com/gogpu/stage/pool"
)

// Default configuration constants.
const (
	// DefaultMaxObjects is the local item count that triggers subdivision.
	DefaultMaxObjects = 10

	// DefaultMaxLevels is the maximum tree depth.
	DefaultMaxLevels = 8
)

// Quadrant indices.
const (
	topLeft = iota
	topRight
	bottomLeft
	bottomRight
)

// Item is a value that can be indexed. Items are compared with == for
// removal, so pointer types are the usual choice. Bounds with negative
// extents are indexed by their canonical form.
type Item interface {
	comparable
	Bounds() geom.Rect
}

// Config configures a Quadtree.
type Config struct {
	// Bounds is the world rectangle covered by the root node.
	Bounds geom.Rect

	// MaxObjects is the local item count above which a node subdivides.
	MaxObjects int

	// MaxLevels is the maximum depth (the root is level 0).
	MaxLevels int

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// Stats describes the shape of the tree.
type Stats struct {
	Items       int
	Nodes       int
	Depth       int
	PooledNodes int
}

// node is one quadrant.
type node[T Item] struct {
	bounds   geom.Rect
	level    int
	items    []T
	children [4]*node[T]
	split    bool
}

// Reset drops the node's items and children so it can be pooled.
func (n *node[T]) Reset() {
	clear(n.items)
	n.items = n.items[:0]
	n.children = [4]*node[T]{}
	n.split = false
	n.bounds = geom.Rect{}
	n.level = 0
}

// Quadtree is a region quadtree index.
type Quadtree[T Item] struct {
	cfg   Config
	log   *slog.Logger
	root  *node[T]
	nodes *pool.Pool[*node[T]]
	where map[T]*node[T]
}

// New creates an empty Quadtree.
func New[T Item](cfg Config) *Quadtree[T] {
	if cfg.MaxObjects <= 0 {
		cfg.MaxObjects = DefaultMaxObjects
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = DefaultMaxLevels
	}

	q := &Quadtree[T]{
		cfg:   cfg,
		log:   logging.Component(cfg.Logger, "spatial"),
		where: make(map[T]*node[T]),
	}
	q.nodes = pool.New(pool.Config[*node[T]]{
		Name:        "quadtree-node",
		New:         func() *node[T] { return &node[T]{} },
		InitialSize: 4,
		MaxSize:     4096,
		Logger:      cfg.Logger,
	})
	q.root = &node[T]{bounds: cfg.Bounds}
	return q
}

// Bounds returns the world rectangle of the root node.
func (q *Quadtree[T]) Bounds() geom.Rect {
	return q.cfg.Bounds
}

// Len returns the number of indexed items.
func (q *Quadtree[T]) Len() int {
	return len(q.where)
}

// Contains reports whether item is indexed.
func (q *Quadtree[T]) Contains(item T) bool {
	_, ok := q.where[item]
	return ok
}

// Insert adds item to the tree. Inserting an item that is already indexed
// re-files it under its current bounds.
func (q *Quadtree[T]) Insert(item T) {
	if _, ok := q.where[item]; ok {
		q.Remove(item)
	}

	b := item.Bounds().Canon()
	n := q.root
	for n.split {
		idx := n.childIndex(b)
		if idx < 0 {
			break
		}
		n = n.children[idx]
	}

	n.items = append(n.items, item)
	q.where[item] = n

	if !n.split && len(n.items) > q.cfg.MaxObjects && n.level < q.cfg.MaxLevels {
		q.subdivide(n)
	}
}

// Remove deletes item from the tree and reports whether it was present.
// Removal does not depend on the item's current bounds.
func (q *Quadtree[T]) Remove(item T) bool {
	n, ok := q.where[item]
	if !ok {
		return false
	}
	if i := slices.Index(n.items, item); i >= 0 {
		n.items = slices.Delete(n.items, i, i+1)
	}
	delete(q.where, item)
	return true
}

// Update re-files item after its bounds changed.
func (q *Quadtree[T]) Update(item T) {
	q.Remove(item)
	q.Insert(item)
}

// Query returns every item whose bounds intersect rect.
// Edges are inclusive, so zero-size items on the query boundary are found.
func (q *Quadtree[T]) Query(rect geom.Rect) []T {
	return q.QueryInto(nil, rect)
}

// QueryInto appends matches to dst and returns the extended slice.
func (q *Quadtree[T]) QueryInto(dst []T, rect geom.Rect) []T {
	return q.root.query(dst, rect.Canon())
}

// Clear removes every item. Child nodes are returned to the node pool.
func (q *Quadtree[T]) Clear() {
	q.releaseChildren(q.root)
	clear(q.root.items)
	q.root.items = q.root.items[:0]
	clear(q.where)
}

// Stats returns a description of the tree shape.
func (q *Quadtree[T]) Stats() Stats {
	st := Stats{Items: len(q.where), PooledNodes: q.nodes.Len()}
	q.root.walk(func(n *node[T]) {
		st.Nodes++
		if n.level > st.Depth {
			st.Depth = n.level
		}
	})
	return st
}

// subdivide splits n into four children and pushes down every local item
// that fits entirely into one of them.
func (q *Quadtree[T]) subdivide(n *node[T]) {
	halfW := n.bounds.Width / 2
	halfH := n.bounds.Height / 2
	x, y := n.bounds.X, n.bounds.Y

	quads := [4]geom.Rect{
		topLeft:     geom.R(x, y, halfW, halfH),
		topRight:    geom.R(x+halfW, y, halfW, halfH),
		bottomLeft:  geom.R(x, y+halfH, halfW, halfH),
		bottomRight: geom.R(x+halfW, y+halfH, halfW, halfH),
	}
	for i, r := range quads {
		child := q.nodes.Acquire()
		child.bounds = r
		child.level = n.level + 1
		n.children[i] = child
	}
	n.split = true

	keep := n.items[:0]
	for _, it := range n.items {
		if idx := n.childIndex(it.Bounds().Canon()); idx >= 0 {
			child := n.children[idx]
			child.items = append(child.items, it)
			q.where[it] = child
			continue
		}
		keep = append(keep, it)
	}
	clear(n.items[len(keep):])
	n.items = keep

	q.log.Debug("node subdivided",
		slog.Int("level", n.level),
		slog.Int("kept", len(keep)))
}

// releaseChildren returns every descendant of n to the node pool.
func (q *Quadtree[T]) releaseChildren(n *node[T]) {
	if !n.split {
		return
	}
	for i, c := range n.children {
		q.releaseChildren(c)
		q.nodes.Release(c)
		n.children[i] = nil
	}
	n.split = false
}

// childIndex returns the quadrant fully containing b, or -1 when b straddles
// the midlines or leaves the node bounds.
func (n *node[T]) childIndex(b geom.Rect) int {
	midX := n.bounds.X + n.bounds.Width/2
	midY := n.bounds.Y + n.bounds.Height/2

	left := b.X >= n.bounds.X && b.Right() <= midX
	right := b.X >= midX && b.Right() <= n.bounds.Right()
	top := b.Y >= n.bounds.Y && b.Bottom() <= midY
	bottom := b.Y >= midY && b.Bottom() <= n.bounds.Bottom()

	switch {
	case top && left:
		return topLeft
	case top && right:
		return topRight
	case bottom && left:
		return bottomLeft
	case bottom && right:
		return bottomRight
	}
	return -1
}

func (n *node[T]) query(dst []T, rect geom.Rect) []T {
	for _, it := range n.items {
		if it.Bounds().Canon().Intersects(rect) {
			dst = append(dst, it)
		}
	}
	if n.split {
		for _, c := range n.children {
			if c.bounds.Intersects(rect) {
				dst = c.query(dst, rect)
			}
		}
	}
	return dst
}

func (n *node[T]) walk(fn func(*node[T])) {
	fn(n)
	if n.split {
		for _, c := range n.children {
			c.walk(fn)
		}
	}
}
