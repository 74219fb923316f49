// Package cluster finds outage clusters: nodes whose geodesic neighborhood has
// an offline ratio at or above a threshold.
//
// Detection is a pure function of its inputs. A Detector holds only its
// configuration, builds any spatial index it needs inside the call and
// discards it afterwards, so one Detector may be used from many goroutines.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/grid"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/rtree"
)

var (
	// ErrInvalidParameter is returned for a radius that is not a positive
	// finite number or a threshold outside [0, 1].
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidLocation is returned when a node has malformed coordinates.
	ErrInvalidLocation = geo.ErrInvalidLocation
)

// Strategy selects how candidate neighbors are found.
type Strategy int

const (
	// StrategyRTree prunes candidates with an R-Tree.
	StrategyRTree Strategy = iota
	// StrategyGrid prunes candidates with a lat/lon bucket grid.
	StrategyGrid
	// StrategyNaive compares every pair of nodes.
	StrategyNaive
)

func (s Strategy) String() string {
	switch s {
	case StrategyRTree:
		return "rtree"
	case StrategyGrid:
		return "grid"
	case StrategyNaive:
		return "naive"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps "rtree", "grid" or "naive" to a Strategy. The empty
// string selects the R-Tree.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rtree":
		return StrategyRTree, nil
	case "grid":
		return StrategyGrid, nil
	case "naive":
		return StrategyNaive, nil
	default:
		return 0, fmt.Errorf("%w: unknown detection strategy %q", ErrInvalidParameter, name)
	}
}

// Strategies lists every available strategy.
func Strategies() []Strategy {
	return []Strategy{StrategyRTree, StrategyGrid, StrategyNaive}
}

// Neighborhood holds the counts computed for one node.
type Neighborhood struct {
	Index     int     `json:"index"`
	Neighbors int     `json:"neighbors"`
	Offline   int     `json:"offline"`
	Ratio     float64 `json:"ratio"`
}

// Detector runs outage cluster detection with a fixed strategy and metric.
type Detector struct {
	strategy Strategy
	metric   geo.Metric
}

// Option configures a Detector.
type Option func(*Detector)

// WithStrategy selects the neighbor search strategy.
func WithStrategy(s Strategy) Option {
	return func(d *Detector) { d.strategy = s }
}

// WithMetric selects the distance metric. The default is geo.Vincenty.
func WithMetric(m geo.Metric) Option {
	return func(d *Detector) {
		if m != nil {
			d.metric = m
		}
	}
}

// NewDetector returns a Detector using the R-Tree strategy and the WGS-84
// metric unless overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		strategy: StrategyRTree,
		metric:   geo.Vincenty,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Strategy returns the configured strategy.
func (d *Detector) Strategy() Strategy {
	return d.strategy
}

// Detect runs a default Detector.
func Detect(nodes []models.Node, radiusMeters, thresholdRatio float64) ([]models.AffectedZone, error) {
	return NewDetector().Detect(nodes, radiusMeters, thresholdRatio)
}

// Detect returns one AffectedZone per node whose neighborhood offline ratio
// is at least thresholdRatio, in input order. Parameters are validated before
// any location is looked at, and locations before any distance is computed.
func (d *Detector) Detect(nodes []models.Node, radiusMeters, thresholdRatio float64) ([]models.AffectedZone, error) {
	if err := validateRadius(radiusMeters); err != nil {
		return nil, err
	}
	if err := validateThreshold(thresholdRatio); err != nil {
		return nil, err
	}

	hoods, err := d.Analyze(nodes, radiusMeters)
	if err != nil {
		return nil, err
	}
	return zonesFrom(nodes, hoods, thresholdRatio), nil
}

// Report holds the zones of one detection pass and statistics over every
// neighborhood examined.
type Report struct {
	Zones   []models.AffectedZone `json:"zones"`
	Summary Summary               `json:"summary"`
}

// Report runs Detect and Summarize over a single neighborhood pass.
func (d *Detector) Report(nodes []models.Node, radiusMeters, thresholdRatio float64) (Report, error) {
	if err := validateRadius(radiusMeters); err != nil {
		return Report{}, err
	}
	if err := validateThreshold(thresholdRatio); err != nil {
		return Report{}, err
	}

	hoods, err := d.Analyze(nodes, radiusMeters)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Zones:   zonesFrom(nodes, hoods, thresholdRatio),
		Summary: Summarize(nodes, hoods, thresholdRatio),
	}, nil
}

func zonesFrom(nodes []models.Node, hoods []Neighborhood, thresholdRatio float64) []models.AffectedZone {
	zones := make([]models.AffectedZone, 0)
	for _, h := range hoods {
		if h.Ratio < thresholdRatio {
			continue
		}
		n := nodes[h.Index]
		zones = append(zones, models.AffectedZone{
			Location:     n.Location,
			NodeIndex:    h.Index,
			NodeID:       n.ID,
			Provider:     n.Provider,
			Neighbors:    h.Neighbors,
			Offline:      h.Offline,
			OfflineRatio: h.Ratio,
		})
	}
	return zones
}

// Analyze computes the neighborhood of every node without applying a
// threshold.
func (d *Detector) Analyze(nodes []models.Node, radiusMeters float64) ([]Neighborhood, error) {
	if err := validateRadius(radiusMeters); err != nil {
		return nil, err
	}
	for i := range nodes {
		if err := geo.ValidateLocation(nodes[i].Location); err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, nodes[i].ID, err)
		}
	}

	hoods := make([]Neighborhood, 0, len(nodes))
	if len(nodes) == 0 {
		return hoods, nil
	}

	finder, err := d.newFinder(nodes, radiusMeters)
	if err != nil {
		return nil, err
	}

	for i := range nodes {
		neighbors, err := finder.Neighbors(i, radiusMeters)
		if err != nil {
			return nil, fmt.Errorf("failed to find neighbors of node %d: %w", i, err)
		}
		if len(neighbors) == 0 {
			continue
		}
		offline := 0
		for _, j := range neighbors {
			if nodes[j].Offline() {
				offline++
			}
		}
		hoods = append(hoods, Neighborhood{
			Index:     i,
			Neighbors: len(neighbors),
			Offline:   offline,
			Ratio:     float64(offline) / float64(len(neighbors)),
		})
	}
	return hoods, nil
}

type neighborFinder interface {
	Neighbors(i int, radiusMeters float64) ([]int, error)
}

func (d *Detector) newFinder(nodes []models.Node, radiusMeters float64) (neighborFinder, error) {
	switch d.strategy {
	case StrategyRTree:
		return rtree.NewNodeIndex(nodes, d.metric), nil
	case StrategyGrid:
		return grid.New(nodes, grid.CellSizeFor(radiusMeters), d.metric), nil
	case StrategyNaive:
		return &naiveScan{nodes: nodes, metric: d.metric}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %v", ErrInvalidParameter, d.strategy)
	}
}

// naiveScan is the pairwise baseline the indexed strategies must match.
type naiveScan struct {
	nodes  []models.Node
	metric geo.Metric
}

func (s *naiveScan) Neighbors(i int, radiusMeters float64) ([]int, error) {
	center := s.nodes[i].Location
	var neighbors []int
	for j := range s.nodes {
		if s.metric(center, s.nodes[j].Location) <= radiusMeters {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors, nil
}

func validateRadius(radiusMeters float64) error {
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return fmt.Errorf("%w: radius must be a positive finite number of meters, got %v", ErrInvalidParameter, radiusMeters)
	}
	return nil
}

func validateThreshold(thresholdRatio float64) error {
	if math.IsNaN(thresholdRatio) || thresholdRatio < 0 || thresholdRatio > 1 {
		return fmt.Errorf("%w: threshold ratio must lie in [0, 1], got %v", ErrInvalidParameter, thresholdRatio)
	}
	return nil
}

// Locations returns the distinct locations of the zones in first-seen order.
func Locations(zones []models.AffectedZone) []models.Location {
	seen := make(map[models.Location]struct{}, len(zones))
	locations := make([]models.Location, 0, len(zones))
	for _, z := range zones {
		if _, ok := seen[z.Location]; ok {
			continue
		}
		seen[z.Location] = struct{}{}
		locations = append(locations, z.Location)
	}
	return locations
}
