// Package grid provides a bucket-grid spatial index over lat/lon degrees.
// Cell size approximately matches the search radius so a neighborhood query
// touches only a handful of cells.
package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

const (
	minCellDeg = 1e-7
	maxCellDeg = 180.0
)

type cellKey struct {
	row, col int64
}

// Index maps grid cells to node indices.
type Index struct {
	CellDeg float64
	cells   map[cellKey][]int
	nodes   []models.Node
	metric  geo.Metric
}

// CellSizeFor returns the cell edge in degrees suited to queries of the
// given radius: the latitude half-height of the radius search box.
func CellSizeFor(radiusMeters float64) float64 {
	boxes := geo.RadiusBounds(models.Location{}, radiusMeters)
	size := (boxes[0].TopRight.Lat - boxes[0].BottomLeft.Lat) / 2
	return math.Max(minCellDeg, math.Min(maxCellDeg, size))
}

// New creates a grid with the given cell size and populates it.
func New(nodes []models.Node, cellDeg float64, metric geo.Metric) *Index {
	if metric == nil {
		metric = geo.Vincenty
	}
	if math.IsNaN(cellDeg) || cellDeg < minCellDeg {
		cellDeg = minCellDeg
	}
	if cellDeg > maxCellDeg {
		cellDeg = maxCellDeg
	}

	idx := &Index{
		CellDeg: cellDeg,
		cells:   make(map[cellKey][]int),
		nodes:   nodes,
		metric:  metric,
	}
	for i, n := range nodes {
		key := idx.cellOf(n.Location)
		idx.cells[key] = append(idx.cells[key], i)
	}
	return idx
}

// Cells returns the number of populated cells.
func (idx *Index) Cells() int {
	return len(idx.cells)
}

func (idx *Index) cellOf(loc models.Location) cellKey {
	return cellKey{
		row: int64(math.Floor((loc.Lat + 90) / idx.CellDeg)),
		col: int64(math.Floor((loc.Lon + 180) / idx.CellDeg)),
	}
}

// QueryRadius returns the indices of nodes whose distance from center is at
// most radiusMeters, ascending.
func (idx *Index) QueryRadius(center models.Location, radiusMeters float64) []int {
	boxes := geo.RadiusBounds(center, radiusMeters)

	var seen map[int]struct{}
	if len(boxes) > 1 {
		seen = make(map[int]struct{})
	}

	var indices []int
	check := func(candidates []int) {
		for _, j := range candidates {
			if seen != nil {
				if _, dup := seen[j]; dup {
					continue
				}
				seen[j] = struct{}{}
			}
			if idx.metric(center, idx.nodes[j].Location) <= radiusMeters {
				indices = append(indices, j)
			}
		}
	}

	for _, box := range boxes {
		lo := idx.cellOf(box.BottomLeft)
		hi := idx.cellOf(box.TopRight)

		// A wide box over a sparse grid is cheaper to answer by walking the
		// populated cells than by probing every cell in range.
		span := float64(hi.row-lo.row+1) * float64(hi.col-lo.col+1)
		if span > float64(len(idx.cells)) {
			for key, candidates := range idx.cells {
				if key.row >= lo.row && key.row <= hi.row && key.col >= lo.col && key.col <= hi.col {
					check(candidates)
				}
			}
			continue
		}

		for row := lo.row; row <= hi.row; row++ {
			for col := lo.col; col <= hi.col; col++ {
				check(idx.cells[cellKey{row: row, col: col}])
			}
		}
	}

	sort.Ints(indices)
	return indices
}

// Neighbors returns the neighborhood of node i, i included.
func (idx *Index) Neighbors(i int, radiusMeters float64) ([]int, error) {
	if i < 0 || i >= len(idx.nodes) {
		return nil, fmt.Errorf("node index %d out of range [0, %d)", i, len(idx.nodes))
	}
	return idx.QueryRadius(idx.nodes[i].Location, radiusMeters), nil
}
