package cluster

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

// Summary describes the offline ratios seen across one detection pass.
type Summary struct {
	Nodes         int     `json:"nodes"`
	OfflineNodes  int     `json:"offline_nodes"`
	AffectedZones int     `json:"affected_zones"`
	MeanRatio     float64 `json:"mean_ratio"`
	StdDevRatio   float64 `json:"stddev_ratio"`
	MedianRatio   float64 `json:"median_ratio"`
	P90Ratio      float64 `json:"p90_ratio"`
	MaxRatio      float64 `json:"max_ratio"`
}

// Summarize aggregates neighborhoods produced by Analyze for nodes.
func Summarize(nodes []models.Node, hoods []Neighborhood, thresholdRatio float64) Summary {
	s := Summary{
		Nodes:        len(nodes),
		OfflineNodes: models.NodeSet(nodes).CountOffline(),
	}
	if len(hoods) == 0 {
		return s
	}

	ratios := make([]float64, len(hoods))
	for i, h := range hoods {
		ratios[i] = h.Ratio
		if h.Ratio >= thresholdRatio {
			s.AffectedZones++
		}
	}
	sort.Float64s(ratios)

	s.MeanRatio = stat.Mean(ratios, nil)
	if len(ratios) > 1 {
		s.StdDevRatio = stat.StdDev(ratios, nil)
	}
	s.MedianRatio = stat.Quantile(0.5, stat.Empirical, ratios, nil)
	s.P90Ratio = stat.Quantile(0.9, stat.Empirical, ratios, nil)
	s.MaxRatio = floats.Max(ratios)
	return s
}
