package pipeline

import (
	"time"

	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/metrics"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

// Simulation describes simulated providers around each refreshed center.
type Simulation struct {
	Points             int
	SpreadDeg          float64
	OfflineProbability float64
	Seed               int64 // 0 draws a fresh seed per refresh
	Providers          []string
}

// SimulatedSource returns a SourceFunc that simulates one node set per
// provider, splitting Points between them. Provider failures are logged and
// counted.
func SimulatedSource(sim Simulation, log logging.Logger, m *metrics.Collector) SourceFunc {
	names := sim.Providers
	if len(names) == 0 {
		names = []string{"simulated"}
	}

	return func(center models.Location) (source.NodeSource, error) {
		seed := sim.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		share := sim.Points / len(names)
		extra := sim.Points % len(names)

		providers := make([]source.Provider, len(names))
		for i, name := range names {
			points := share
			if i < extra {
				points++
			}
			providers[i] = source.Provider{
				Name: name,
				Source: &source.Simulator{
					Center:             center,
					Points:             points,
					SpreadDeg:          sim.SpreadDeg,
					OfflineProbability: sim.OfflineProbability,
					Provider:           name,
					Seed:               seed + int64(i),
				},
			}
		}
		return source.NewMulti(providers,
			source.WithLogger(log),
			source.WithFailureHook(m.SourceFailure),
		), nil
	}
}

// FixedSource ignores the center and always reads from src, as for a
// database or snapshot file.
func FixedSource(src source.NodeSource) SourceFunc {
	return func(models.Location) (source.NodeSource, error) {
		return src, nil
	}
}
