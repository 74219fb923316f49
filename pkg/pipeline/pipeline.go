// Package pipeline ties geocoding, node collection and outage detection into
// a refreshable snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/geocode"
	"github.com/1F47E/geo-outage-rtree/pkg/metrics"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

// Params are the detection parameters applied on every refresh.
type Params struct {
	RadiusMeters   float64 `json:"radius_meters"`
	ThresholdRatio float64 `json:"threshold_ratio"`
}

// Snapshot is the outcome of one refresh.
type Snapshot struct {
	Postcode    string                `json:"postcode"`
	Center      models.Location       `json:"center"`
	MapCenter   models.Location       `json:"map_center"`
	Params      Params                `json:"params"`
	Strategy    string                `json:"strategy"`
	Nodes       []models.Node         `json:"nodes"`
	Zones       []models.AffectedZone `json:"zones"`
	Heat        []models.Location     `json:"heat"`
	Summary     cluster.Summary       `json:"summary"`
	RefreshedAt time.Time             `json:"refreshed_at"`
	Took        time.Duration         `json:"took_ns"`
}

// SourceFunc builds the node source for a geocoded center.
type SourceFunc func(center models.Location) (source.NodeSource, error)

// Runner performs refreshes and stores the results in State.
type Runner struct {
	Geocoder geocode.Geocoder
	Source   SourceFunc
	Detector *cluster.Detector
	Params   Params
	Metrics  *metrics.Collector
	Log      logging.Logger
	State    *State

	now func() time.Time
}

func (r *Runner) logger() logging.Logger {
	if r.Log == nil {
		return logging.Noop()
	}
	return r.Log
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Refresh geocodes postcode, collects nodes around it and runs detection. On
// success the snapshot replaces the one in State.
func (r *Runner) Refresh(ctx context.Context, postcode string) (Snapshot, error) {
	if r.Geocoder == nil || r.Source == nil || r.Detector == nil {
		return Snapshot{}, errors.New("pipeline runner is missing a geocoder, source or detector")
	}
	log := r.logger().With(logging.String("postcode", postcode))

	center, err := r.Geocoder.Lookup(postcode)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to geocode postcode %q: %w", postcode, err)
	}

	src, err := r.Source(center)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to build node source: %w", err)
	}
	nodes, err := src.Nodes(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to collect nodes: %w", err)
	}

	strategy := r.Detector.Strategy().String()
	start := time.Now()
	report, err := r.Detector.Report(nodes, r.Params.RadiusMeters, r.Params.ThresholdRatio)
	took := time.Since(start)
	r.Metrics.ObserveDetection(strategy, took, err)
	if err != nil {
		return Snapshot{}, fmt.Errorf("detection failed: %w", err)
	}

	snap := Snapshot{
		Postcode:    postcode,
		Center:      center,
		MapCenter:   center,
		Params:      r.Params,
		Strategy:    strategy,
		Nodes:       nodes,
		Zones:       report.Zones,
		Heat:        offlineLocations(nodes),
		Summary:     report.Summary,
		RefreshedAt: r.clock().UTC(),
		Took:        took,
	}
	if len(nodes) > 0 {
		snap.MapCenter = nodes[0].Location
	}

	r.Metrics.SetSnapshot(report.Summary.Nodes, report.Summary.OfflineNodes, len(report.Zones))
	if r.State != nil {
		r.State.Set(snap)
	}

	log.Info(ctx, "refresh complete",
		logging.Int("nodes", len(nodes)),
		logging.Int("offline", report.Summary.OfflineNodes),
		logging.Int("zones", len(report.Zones)),
		logging.String("strategy", strategy),
		logging.Any("took", took))
	return snap, nil
}

// Ensure returns the stored snapshot when it was produced for postcode, and
// refreshes otherwise. The second result reports whether a refresh ran.
func (r *Runner) Ensure(ctx context.Context, postcode string) (Snapshot, bool, error) {
	if r.State != nil {
		if snap, ok := r.State.Current(); ok && snap.Postcode == postcode {
			return snap, false, nil
		}
	}
	snap, err := r.Refresh(ctx, postcode)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Watch refreshes postcode immediately and then on every tick until ctx is
// done. A failed refresh is logged and the previous snapshot kept.
func (r *Runner) Watch(ctx context.Context, interval time.Duration, postcode string) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %v", interval)
	}
	log := r.logger()
	log.Info(ctx, "starting refresh loop",
		logging.String("postcode", postcode),
		logging.Any("interval", interval))

	refresh := func() {
		if _, err := r.Refresh(ctx, postcode); err != nil && ctx.Err() == nil {
			log.Error(ctx, "refresh failed, keeping previous snapshot",
				logging.String("postcode", postcode),
				logging.Err(err))
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "refresh loop stopping")
			return ctx.Err()
		case <-ticker.C:
			refresh()
		}
	}
}

func offlineLocations(nodes []models.Node) []models.Location {
	heat := make([]models.Location, 0)
	for _, n := range nodes {
		if n.Offline() {
			heat = append(heat, n.Location)
		}
	}
	return heat
}

// State holds the latest snapshot of a session. The zero value is ready to
// use.
type State struct {
	mu    sync.RWMutex
	snap  Snapshot
	valid bool
}

// Set replaces the current snapshot.
func (s *State) Set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.valid = true
	s.mu.Unlock()
}

// Current returns the latest snapshot and whether one exists.
func (s *State) Current() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.valid
}

// LastPostcode returns the postcode of the latest snapshot.
func (s *State) LastPostcode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Postcode
}

// LastRefresh returns when the latest snapshot was taken.
func (s *State) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.RefreshedAt
}
