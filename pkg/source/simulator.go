package source

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

const (
	DefaultPoints             = 100
	DefaultSpreadDeg          = 0.05 // roughly 5 km
	DefaultOfflineProbability = 0.5
)

// Simulator generates nodes scattered uniformly in a square of +-SpreadDeg
// around Center. The same Seed always yields the same nodes, IDs included.
type Simulator struct {
	Center             models.Location
	Points             int
	SpreadDeg          float64
	OfflineProbability float64
	Provider           string
	Seed               int64
}

// NewSimulator returns a simulator with the default size, spread and offline
// probability.
func NewSimulator(center models.Location, seed int64) *Simulator {
	return &Simulator{
		Center:             center,
		Points:             DefaultPoints,
		SpreadDeg:          DefaultSpreadDeg,
		OfflineProbability: DefaultOfflineProbability,
		Provider:           "simulated",
		Seed:               seed,
	}
}

func (s *Simulator) validate() error {
	if err := geo.ValidateLocation(s.Center); err != nil {
		return fmt.Errorf("invalid simulation center: %w", err)
	}
	if s.Points < 0 {
		return fmt.Errorf("point count must not be negative, got %d", s.Points)
	}
	if math.IsNaN(s.SpreadDeg) || s.SpreadDeg < 0 || s.SpreadDeg > 90 {
		return fmt.Errorf("spread must lie in [0, 90] degrees, got %v", s.SpreadDeg)
	}
	if math.IsNaN(s.OfflineProbability) || s.OfflineProbability < 0 || s.OfflineProbability > 1 {
		return fmt.Errorf("offline probability must lie in [0, 1], got %v", s.OfflineProbability)
	}
	return nil
}

// Nodes implements NodeSource.
func (s *Simulator) Nodes(ctx context.Context) ([]models.Node, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	r := rand.New(rand.NewSource(s.Seed))
	nodes := make([]models.Node, s.Points)
	for i := range nodes {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		lat := s.Center.Lat + (r.Float64()*2-1)*s.SpreadDeg
		lon := s.Center.Lon + (r.Float64()*2-1)*s.SpreadDeg
		status := models.StatusOnline
		if r.Float64() < s.OfflineProbability {
			status = models.StatusOffline
		}
		id, err := uuid.NewRandomFromReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to generate node id: %w", err)
		}

		nodes[i] = models.Node{
			ID:       id.String(),
			Location: models.Location{Lat: clampLat(lat), Lon: wrapLon(lon)},
			Status:   status,
			Provider: s.Provider,
		}
	}
	return nodes, nil
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
