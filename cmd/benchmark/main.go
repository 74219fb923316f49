package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/grid"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

type BenchmarkResult struct {
	Strategy      string
	TotalRuns     int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	RunsPerSec    float64
	Zones         int
	Mismatches    int
}

func main() {
	var (
		inputFile  = flag.String("i", "", "Snapshot file (.gob or .json); simulated when empty")
		numPoints  = flag.Int("n", 20000, "Number of simulated routers")
		spread     = flag.Float64("spread", 0.05, "Simulation spread in degrees")
		seed       = flag.Int64("seed", 1, "Simulation seed")
		radius     = flag.Float64("r", 200, "Neighborhood radius in meters")
		threshold  = flag.Float64("t", 0.5, "Offline ratio threshold")
		runs       = flag.Int("runs", 10, "Detection runs per strategy")
		workers    = flag.Int("w", runtime.NumCPU(), "Number of concurrent workers")
		strategies = flag.String("s", "rtree,grid,naive", "Comma separated strategies")
		metricName = flag.String("metric", "vincenty", "Distance metric: vincenty or haversine")
		maxNaive   = flag.Int("max-naive", 50000, "Skip the naive strategy above this many routers")
	)
	flag.Parse()

	metric, err := geo.ParseMetric(*metricName)
	if err != nil {
		log.Fatalf("Invalid metric: %v", err)
	}

	nodes, err := loadNodes(*inputFile, *numPoints, *spread, *seed)
	if err != nil {
		log.Fatalf("Failed to load routers: %v", err)
	}
	log.Printf("Loaded %d routers (%d offline)\n", len(nodes), models.NodeSet(nodes).CountOffline())

	var reference []int
	var results []BenchmarkResult
	for _, name := range strings.Split(*strategies, ",") {
		strategy, err := cluster.ParseStrategy(name)
		if err != nil {
			log.Fatalf("Invalid strategy: %v", err)
		}
		if strategy == cluster.StrategyNaive && len(nodes) > *maxNaive {
			log.Printf("Skipping naive strategy for %d routers (-max-naive %d)\n", len(nodes), *maxNaive)
			continue
		}

		detector := cluster.NewDetector(cluster.WithStrategy(strategy), cluster.WithMetric(metric))
		if reference == nil {
			zones, err := detector.Detect(nodes, *radius, *threshold)
			if err != nil {
				log.Fatalf("Detection failed: %v", err)
			}
			reference = zoneIndices(zones)
		}

		if strategy == cluster.StrategyGrid {
			cellDeg := grid.CellSizeFor(*radius)
			log.Printf("Grid uses %d occupied cells of %.5f degrees\n", grid.New(nodes, cellDeg, metric).Cells(), cellDeg)
		}

		log.Printf("Running %d %s detections with %d workers...\n", *runs, strategy, *workers)
		results = append(results, benchmarkStrategy(detector, nodes, *radius, *threshold, *runs, *workers, reference))
	}

	fmt.Println("\n=== Benchmark Results ===")
	fmt.Printf("Routers: %d, radius: %.0f m, threshold: %.2f\n", len(nodes), *radius, *threshold)
	for _, r := range results {
		fmt.Printf("\n[%s]\n", r.Strategy)
		fmt.Printf("Total Runs: %d\n", r.TotalRuns)
		fmt.Printf("Total Duration: %v\n", r.TotalDuration)
		fmt.Printf("Average Duration: %v\n", r.AvgDuration)
		fmt.Printf("Min Duration: %v\n", r.MinDuration)
		fmt.Printf("Max Duration: %v\n", r.MaxDuration)
		fmt.Printf("Runs/Second: %.2f\n", r.RunsPerSec)
		fmt.Printf("Affected Zones: %d\n", r.Zones)
		fmt.Printf("Mismatched Runs: %d\n", r.Mismatches)
	}
	fmt.Printf("\nWorkers Used: %d\n", *workers)
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())

	for _, r := range results {
		if r.Mismatches > 0 {
			log.Fatalf("Strategy %s disagreed with the reference in %d runs", r.Strategy, r.Mismatches)
		}
	}
}

func loadNodes(inputFile string, n int, spread float64, seed int64) ([]models.Node, error) {
	if inputFile != "" {
		log.Printf("Loading snapshot from %s...\n", inputFile)
		return source.LoadSnapshot(inputFile)
	}

	sim := source.NewSimulator(models.Location{Lat: 52.5200, Lon: 13.4050}, seed)
	sim.Points = n
	sim.SpreadDeg = spread
	return sim.Nodes(context.Background())
}

func benchmarkStrategy(detector *cluster.Detector, nodes []models.Node, radius, threshold float64,
	runs, workers int, reference []int) BenchmarkResult {

	var (
		minDuration = time.Hour
		maxDuration time.Duration
		totalDur    time.Duration
		zones       int
		mismatches  int
		mu          sync.Mutex
	)

	startTime := time.Now()

	runCh := make(chan int, runs)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for range runCh {
				runStart := time.Now()
				result, err := detector.Detect(nodes, radius, threshold)
				runDuration := time.Since(runStart)
				if err != nil {
					log.Printf("Detection error: %v", err)
					continue
				}

				mu.Lock()
				totalDur += runDuration
				zones = len(result)
				if !slices.Equal(zoneIndices(result), reference) {
					mismatches++
				}
				if runDuration < minDuration {
					minDuration = runDuration
				}
				if runDuration > maxDuration {
					maxDuration = runDuration
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < runs; i++ {
		runCh <- i
	}
	close(runCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	var avgDuration time.Duration
	if runs > 0 {
		avgDuration = totalDur / time.Duration(runs)
	}

	return BenchmarkResult{
		Strategy:      detector.Strategy().String(),
		TotalRuns:     runs,
		TotalDuration: totalDuration,
		AvgDuration:   avgDuration,
		MinDuration:   minDuration,
		MaxDuration:   maxDuration,
		RunsPerSec:    float64(runs) / totalDuration.Seconds(),
		Zones:         zones,
		Mismatches:    mismatches,
	}
}

func zoneIndices(zones []models.AffectedZone) []int {
	out := make([]int, len(zones))
	for i, z := range zones {
		out[i] = z.NodeIndex
	}
	return out
}
