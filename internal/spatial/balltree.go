package spatial

import (
	"math"
	"sort"
)

// DefaultLeafSize is the maximum number of points stored in a leaf node.
const DefaultLeafSize = 40

// Neighbor is the result of a nearest-neighbour query.
type Neighbor struct {
	// Index is the position of the point in the slice given to NewBallTree.
	Index int

	// DistanceKm is the great-circle distance to the query point.
	DistanceKm float64
}

// BallTree indexes points for nearest-neighbour queries under the haversine
// metric. Each node bounds its points with a ball (center, angular radius) so
// whole subtrees can be skipped once they cannot beat the current best match.
//
// A BallTree is immutable after construction and safe for concurrent queries.
type BallTree struct {
	points   []radPoint
	order    []int // tree position -> original index
	nodes    []ballNode
	leafSize int
}

type ballNode struct {
	start, end  int // range into order
	center      radPoint
	radius      float64
	left, right int // child node indexes, -1 for leaves
}

// NewBallTree builds a tree over points. Construction is deterministic for a
// given input order. leafSize <= 0 selects DefaultLeafSize.
func NewBallTree(points []Point, leafSize int) *BallTree {
	if leafSize <= 0 {
		leafSize = DefaultLeafSize
	}

	t := &BallTree{
		points:   make([]radPoint, len(points)),
		order:    make([]int, len(points)),
		leafSize: leafSize,
	}
	for i, p := range points {
		t.points[i] = toRadians(p)
		t.order[i] = i
	}

	if len(points) > 0 {
		t.build(0, len(points))
	}
	return t
}

// Len returns the number of indexed points.
func (t *BallTree) Len() int {
	return len(t.points)
}

func (t *BallTree) build(start, end int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, ballNode{start: start, end: end, left: -1, right: -1})

	center := t.centroid(start, end)
	var radius float64
	for _, i := range t.order[start:end] {
		if d := centralAngle(center, t.points[i]); d > radius {
			radius = d
		}
	}
	t.nodes[idx].center = center
	t.nodes[idx].radius = radius

	if end-start <= t.leafSize {
		return idx
	}

	// Split on the coordinate with the widest spread, at the median.
	byLat := t.spread(start, end, func(p radPoint) float64 { return p.lat }) >=
		t.spread(start, end, func(p radPoint) float64 { return p.lon })
	sub := t.order[start:end]
	sort.Slice(sub, func(a, b int) bool {
		pa, pb := t.points[sub[a]], t.points[sub[b]]
		ka, kb := pa.lon, pb.lon
		if byLat {
			ka, kb = pa.lat, pb.lat
		}
		if ka != kb {
			return ka < kb
		}
		return sub[a] < sub[b]
	})

	mid := start + (end-start)/2
	left := t.build(start, mid)
	right := t.build(mid, end)
	t.nodes[idx].left = left
	t.nodes[idx].right = right
	return idx
}

func (t *BallTree) centroid(start, end int) radPoint {
	var c radPoint
	for _, i := range t.order[start:end] {
		c.lat += t.points[i].lat
		c.lon += t.points[i].lon
	}
	n := float64(end - start)
	return radPoint{lat: c.lat / n, lon: c.lon / n}
}

func (t *BallTree) spread(start, end int, key func(radPoint) float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, i := range t.order[start:end] {
		v := key(t.points[i])
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// Nearest returns the indexed point closest to p. The second result is false
// when the tree is empty. Among equidistant points the lowest original index
// wins, so results do not depend on traversal order.
func (t *BallTree) Nearest(p Point) (Neighbor, bool) {
	if len(t.points) == 0 {
		return Neighbor{}, false
	}

	q := toRadians(p)
	best := -1
	bestDist := math.Inf(1)
	t.search(0, q, &best, &bestDist)

	return Neighbor{Index: best, DistanceKm: bestDist * EarthRadiusKm}, true
}

func (t *BallTree) search(nodeIdx int, q radPoint, best *int, bestDist *float64) {
	n := &t.nodes[nodeIdx]
	if centralAngle(q, n.center)-n.radius > *bestDist {
		return
	}

	if n.left < 0 {
		for _, i := range t.order[n.start:n.end] {
			d := centralAngle(q, t.points[i])
			if d < *bestDist || (d == *bestDist && i < *best) {
				*bestDist = d
				*best = i
			}
		}
		return
	}

	// Descend into the closer child first to tighten the bound early.
	first, second := n.left, n.right
	if centralAngle(q, t.nodes[second].center) < centralAngle(q, t.nodes[first].center) {
		first, second = second, first
	}
	t.search(first, q, best, bestDist)
	t.search(second, q, best, bestDist)
}
