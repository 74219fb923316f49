// Package rtree indexes outage nodes in an R-Tree so that the geodesic
// neighborhood of a node can be found without scanning every other node.
package rtree

import (
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

const (
	tolerance   = 1e-7
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// spatialNode wraps a node position to implement rtreego.Spatial interface
type spatialNode struct {
	index int
	rect  *rtreego.Rect
}

func (sn *spatialNode) Bounds() *rtreego.Rect {
	return sn.rect
}

// NodeIndex is an R-Tree over the positions of one node snapshot. Results are
// slice indices into that snapshot. The index is read-only once built.
type NodeIndex struct {
	tree   *rtreego.Rtree
	nodes  []models.Node
	metric geo.Metric
}

// NewNodeIndex builds an index over nodes. Locations must already be valid;
// metric is the exact distance applied after the box prefilter.
func NewNodeIndex(nodes []models.Node, metric geo.Metric) *NodeIndex {
	if metric == nil {
		metric = geo.Vincenty
	}
	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)
	for i := range nodes {
		p := rtreego.Point{nodes[i].Location.Lat, nodes[i].Location.Lon}
		tree.Insert(&spatialNode{index: i, rect: p.ToRect(tolerance)})
	}
	return &NodeIndex{
		tree:   tree,
		nodes:  nodes,
		metric: metric,
	}
}

// Count returns the number of indexed nodes
func (g *NodeIndex) Count() int {
	return g.tree.Size()
}

// QueryBox returns the indices of nodes inside the bounding box, ascending.
func (g *NodeIndex) QueryBox(box models.BoundingBox) ([]int, error) {
	bottomLeft := rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lon}
	rectSize := []float64{
		box.TopRight.Lat - box.BottomLeft.Lat,
		box.TopRight.Lon - box.BottomLeft.Lon,
	}

	bounds, err := rtreego.NewRect(bottomLeft, rectSize)
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	results := g.tree.SearchIntersect(bounds)

	indices := make([]int, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialNode)
		if !ok {
			continue
		}
		// strict check, the point rects carry a tolerance
		if box.Contains(g.nodes[item.index].Location) {
			indices = append(indices, item.index)
		}
	}
	sort.Ints(indices)
	return indices, nil
}

// QueryRadius returns the indices of nodes whose distance from center is at
// most radiusMeters, ascending. The distance is always metric(center, node).
func (g *NodeIndex) QueryRadius(center models.Location, radiusMeters float64) ([]int, error) {
	boxes := geo.RadiusBounds(center, radiusMeters)

	var seen map[int]struct{}
	if len(boxes) > 1 {
		seen = make(map[int]struct{})
	}

	var indices []int
	for _, box := range boxes {
		bounds, err := rtreego.NewRect(
			rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lon},
			[]float64{box.TopRight.Lat - box.BottomLeft.Lat, box.TopRight.Lon - box.BottomLeft.Lon},
		)
		if err != nil {
			return nil, fmt.Errorf("invalid radius search: %w", err)
		}

		for _, result := range g.tree.SearchIntersect(bounds) {
			item, ok := result.(*spatialNode)
			if !ok {
				continue
			}
			if seen != nil {
				if _, dup := seen[item.index]; dup {
					continue
				}
				seen[item.index] = struct{}{}
			}
			if g.metric(center, g.nodes[item.index].Location) <= radiusMeters {
				indices = append(indices, item.index)
			}
		}
	}
	sort.Ints(indices)
	return indices, nil
}

// Neighbors returns the neighborhood of node i: every node, i included,
// within radiusMeters of it.
func (g *NodeIndex) Neighbors(i int, radiusMeters float64) ([]int, error) {
	if i < 0 || i >= len(g.nodes) {
		return nil, fmt.Errorf("node index %d out of range [0, %d)", i, len(g.nodes))
	}
	return g.QueryRadius(g.nodes[i].Location, radiusMeters)
}
