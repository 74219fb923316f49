package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

// counterBatch is how many routers a worker generates between counter updates.
const counterBatch = 1024

type hotspot struct {
	center models.Location
	radius float64
}

type genParams struct {
	n                              int
	minLat, maxLat, minLon, maxLon float64
	workers                        int
	provider                       string
	baseline, hotProb              float64
	spots                          []hotspot
}

type loadStats struct {
	nodes    []models.Node
	genTime  time.Duration
	saveTime time.Duration
}

func main() {
	var (
		numPoints  = flag.Int("n", 1000000, "Number of routers to generate")
		outputFile = flag.String("o", "data/routers.gob", "Output snapshot path (.gob or .json)")
		workers    = flag.Int("w", runtime.NumCPU(), "Number of worker goroutines")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		provider   = flag.String("provider", "generated", "Provider name stamped on every router")
		baseline   = flag.Float64("p", 0.05, "Offline probability outside hotspots")
		hotspots   = flag.Int("hotspots", 20, "Number of outage hotspots")
		hotRadius  = flag.Float64("hotspot-radius", 2000, "Hotspot radius in meters")
		hotProb    = flag.Float64("hotspot-p", 0.9, "Offline probability inside hotspots")
		plain      = flag.Bool("plain", false, "Log progress lines even on a terminal")
		// Geographic bounds for router generation (default: roughly Germany)
		minLat = flag.Float64("min-lat", 47.3, "Minimum latitude")
		maxLat = flag.Float64("max-lat", 55.0, "Maximum latitude")
		minLon = flag.Float64("min-lon", 5.9, "Minimum longitude")
		maxLon = flag.Float64("max-lon", 15.0, "Maximum longitude")
	)
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*outputFile), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	r := rand.New(rand.NewSource(*seed))
	spots := make([]hotspot, *hotspots)
	for i := range spots {
		spots[i] = hotspot{
			center: models.Location{
				Lat: *minLat + r.Float64()*(*maxLat-*minLat),
				Lon: *minLon + r.Float64()*(*maxLon-*minLon),
			},
			radius: *hotRadius,
		}
	}
	params := genParams{
		n:        *numPoints,
		minLat:   *minLat,
		maxLat:   *maxLat,
		minLon:   *minLon,
		maxLon:   *maxLon,
		workers:  *workers,
		provider: *provider,
		baseline: *baseline,
		hotProb:  *hotProb,
		spots:    spots,
	}

	var counter atomic.Int64
	build := func(stage func(string)) (loadStats, error) {
		var stats loadStats
		start := time.Now()
		stats.nodes = generateRouters(r, params, &counter)
		stats.genTime = time.Since(start)

		stage("Saving snapshot to " + *outputFile)
		start = time.Now()
		if err := source.SaveSnapshot(*outputFile, stats.nodes); err != nil {
			return stats, fmt.Errorf("failed to save snapshot: %w", err)
		}
		stats.saveTime = time.Since(start)
		return stats, nil
	}

	log.Printf("Generating %d routers with %d workers...\n", *numPoints, *workers)
	log.Printf("Geographic bounds: lat[%.2f, %.2f], lon[%.2f, %.2f]\n",
		*minLat, *maxLat, *minLon, *maxLon)

	var (
		stats loadStats
		err   error
	)
	if !*plain && isatty.IsTerminal(os.Stdout.Fd()) {
		stats, err = buildWithProgress(*numPoints, &counter, build)
	} else {
		stop := logProgress(&counter, *numPoints, time.Second)
		stats, err = build(func(s string) { log.Println(s) })
		stop()
	}
	if err != nil {
		log.Fatalf("Load failed: %v", err)
	}

	log.Printf("Generated in %v (%.2f routers/sec)\n", stats.genTime, float64(*numPoints)/stats.genTime.Seconds())
	log.Printf("Snapshot saved in %v\n", stats.saveTime)
	if fileInfo, err := os.Stat(*outputFile); err == nil {
		log.Printf("Snapshot file size: %.2f MB\n", float64(fileInfo.Size())/(1024*1024))
	}
	log.Printf("Total routers: %d (%d offline)\n", len(stats.nodes), models.NodeSet(stats.nodes).CountOffline())
}

// buildWithProgress runs build in the background while a bubbletea program
// renders the counter.
func buildWithProgress(total int, counter *atomic.Int64, build func(stage func(string)) (loadStats, error)) (loadStats, error) {
	p := tea.NewProgram(newLoadModel(total, counter))

	var stats loadStats
	go func() {
		var err error
		stats, err = build(func(s string) { p.Send(stageMsg(s)) })
		p.Send(doneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return loadStats{}, fmt.Errorf("progress display failed: %w", err)
	}
	m := final.(loadModel)
	if m.interrupted {
		return loadStats{}, fmt.Errorf("interrupted")
	}
	// doneMsg is sent after stats is written, and Run only returns after it
	// has been handled.
	return stats, m.err
}

func generateRouters(r *rand.Rand, p genParams, counter *atomic.Int64) []models.Node {
	nodes := make([]models.Node, p.n)
	workers := max(p.workers, 1)

	pointsPerWorker := p.n / workers
	remainder := p.n % workers

	type workRange struct {
		start, end int
	}
	work := make(chan workRange, workers)
	done := make(chan bool, workers)

	for w := 0; w < workers; w++ {
		// Each worker gets its own generator to avoid contention
		wr := rand.New(rand.NewSource(r.Int63()))
		go func() {
			for rng := range work {
				pending := 0
				for i := rng.start; i < rng.end; i++ {
					loc := models.Location{
						Lat: p.minLat + wr.Float64()*(p.maxLat-p.minLat),
						Lon: p.minLon + wr.Float64()*(p.maxLon-p.minLon),
					}
					prob := p.baseline
					if inHotspot(loc, p.spots) {
						prob = p.hotProb
					}
					status := models.StatusOnline
					if wr.Float64() < prob {
						status = models.StatusOffline
					}
					nodes[i] = models.Node{
						ID:       fmt.Sprintf("router_%d", i),
						Location: loc,
						Status:   status,
						Provider: p.provider,
					}

					if pending++; pending == counterBatch {
						counter.Add(int64(pending))
						pending = 0
					}
				}
				counter.Add(int64(pending))
			}
			done <- true
		}()
	}

	start := 0
	for w := 0; w < workers; w++ {
		size := pointsPerWorker
		if w < remainder {
			size++
		}
		work <- workRange{start: start, end: start + size}
		start += size
	}
	close(work)

	for w := 0; w < workers; w++ {
		<-done
	}

	return nodes
}

func inHotspot(loc models.Location, spots []hotspot) bool {
	for _, s := range spots {
		if geo.Haversine(loc, s.center) <= s.radius {
			return true
		}
	}
	return false
}
