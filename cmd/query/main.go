package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/1F47E/geo-outage-rtree/internal/config"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/postgis"
	"github.com/1F47E/geo-outage-rtree/pkg/rtree"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

type result struct {
	Index    int         `json:"index"`
	Node     models.Node `json:"node"`
	Distance *float64    `json:"distance_m,omitempty"`
}

func main() {
	var (
		inputFile = flag.String("i", "data/routers.gob", "Snapshot file path")
		queryType = flag.String("t", "box", "Query type: box, radius, neighbors")
		// Box query parameters
		minLat = flag.Float64("min-lat", 0, "Minimum latitude (box query)")
		maxLat = flag.Float64("max-lat", 0, "Maximum latitude (box query)")
		minLon = flag.Float64("min-lon", 0, "Minimum longitude (box query)")
		maxLon = flag.Float64("max-lon", 0, "Maximum longitude (box query)")
		// Radius query parameters
		centerLat = flag.Float64("lat", 0, "Center latitude (radius query)")
		centerLon = flag.Float64("lon", 0, "Center longitude (radius query)")
		radius    = flag.Float64("radius", 200, "Radius in meters (radius and neighbors queries)")
		// Neighbors query parameters
		node = flag.Int("node", -1, "Router index (neighbors query)")
		// PostGIS
		usePostGIS = flag.Bool("postgis", false, "Run the radius query in PostGIS instead of a snapshot")
		configFile = flag.String("config", "", "YAML config with the PostGIS connection (env OUTAGEMAP_POSTGRES_DSN also works)")
		// Output format
		outputJSON = flag.Bool("json", false, "Output results as JSON")
		limit      = flag.Int("limit", 100, "Maximum number of results to display")
	)
	flag.Parse()

	if *usePostGIS {
		if *queryType != "radius" {
			log.Fatalf("PostGIS supports only radius queries, got %s", *queryType)
		}
		center := models.Location{Lat: *centerLat, Lon: *centerLon}
		if err := geo.ValidateLocation(center); err != nil {
			log.Fatalf("Invalid center: %v", err)
		}
		found, err := queryPostGIS(*configFile, center, *radius)
		if err != nil {
			log.Fatalf("PostGIS radius query failed: %v", err)
		}
		log.Printf("PostGIS radius query (%.0f m) found %d routers\n", *radius, len(found))

		results := make([]result, len(found))
		for i, n := range found {
			d := geo.Vincenty(center, n.Location)
			results[i] = result{Index: i, Node: n, Distance: &d}
		}
		printResults(results, *limit, *outputJSON)
		return
	}

	log.Printf("Loading snapshot from %s...\n", *inputFile)
	nodes, err := source.LoadSnapshot(*inputFile)
	if err != nil {
		log.Fatalf("Failed to load snapshot: %v", err)
	}
	index := rtree.NewNodeIndex(nodes, geo.Vincenty)
	log.Printf("Index built with %d routers\n", index.Count())

	var (
		indices []int
		center  *models.Location
	)

	switch *queryType {
	case "box":
		if *minLat == 0 && *maxLat == 0 && *minLon == 0 && *maxLon == 0 {
			log.Fatal("Box query requires --min-lat, --max-lat, --min-lon, --max-lon")
		}
		box := models.BoundingBox{
			BottomLeft: models.Location{Lat: *minLat, Lon: *minLon},
			TopRight:   models.Location{Lat: *maxLat, Lon: *maxLon},
		}
		indices, err = index.QueryBox(box)
		if err != nil {
			log.Fatalf("Box query failed: %v", err)
		}
		log.Printf("Box query found %d routers\n", len(indices))

	case "radius":
		if *centerLat == 0 && *centerLon == 0 {
			log.Fatal("Radius query requires --lat and --lon for center point")
		}
		c := models.Location{Lat: *centerLat, Lon: *centerLon}
		if err := geo.ValidateLocation(c); err != nil {
			log.Fatalf("Invalid center: %v", err)
		}
		center = &c
		indices, err = index.QueryRadius(c, *radius)
		if err != nil {
			log.Fatalf("Radius query failed: %v", err)
		}
		log.Printf("Radius query (%.0f m) found %d routers\n", *radius, len(indices))

	case "neighbors":
		if *node < 0 || *node >= len(nodes) {
			log.Fatalf("Neighbors query requires --node in [0, %d)", len(nodes))
		}
		c := nodes[*node].Location
		center = &c
		indices, err = index.Neighbors(*node, *radius)
		if err != nil {
			log.Fatalf("Neighbors query failed: %v", err)
		}
		offline := 0
		for _, j := range indices {
			if nodes[j].Offline() {
				offline++
			}
		}
		log.Printf("Router %d has %d neighbors within %.0f m, %d offline (ratio %.2f)\n",
			*node, len(indices), *radius, offline, float64(offline)/float64(len(indices)))

	default:
		log.Fatalf("Unknown query type: %s", *queryType)
	}

	results := make([]result, len(indices))
	for i, j := range indices {
		results[i] = result{Index: j, Node: nodes[j]}
		if center != nil {
			d := geo.Vincenty(*center, nodes[j].Location)
			results[i].Distance = &d
		}
	}
	printResults(results, *limit, *outputJSON)
}

func queryPostGIS(configFile string, center models.Location, radius float64) ([]models.Node, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	store, err := postgis.NewStore(ctx, cfg.PostGIS.ConnString(), cfg.PostGIS.MaxConnections)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.NodesWithin(ctx, center, radius)
}

func printResults(results []result, limit int, asJSON bool) {
	if len(results) > limit {
		log.Printf("Showing first %d results (use --limit to see more)\n", limit)
		results = results[:limit]
	}

	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(results); err != nil {
			log.Fatalf("Failed to encode results: %v", err)
		}
		return
	}

	for i, r := range results {
		loc := r.Node.Location
		if r.Distance != nil {
			fmt.Printf("%d. [%d] %s %s: (%.6f, %.6f) - %.1f m\n",
				i+1, r.Index, r.Node.ID, r.Node.Status, loc.Lat, loc.Lon, *r.Distance)
		} else {
			fmt.Printf("%d. [%d] %s %s: (%.6f, %.6f)\n",
				i+1, r.Index, r.Node.ID, r.Node.Status, loc.Lat, loc.Lon)
		}
	}
}
