package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/geocode"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/rtree"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

func main() {
	// Resolve a postcode
	table := geocode.NewTable()
	center, err := table.Lookup("10115")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Postcode 10115 -> %s\n\n", center)

	// A small hand-made neighborhood: three dead routers on one block,
	// one healthy router a few hundred meters away
	nodes := []models.Node{
		{ID: "A", Location: models.Location{Lat: 52.5320, Lon: 13.3840}, Status: models.StatusOffline},
		{ID: "B", Location: models.Location{Lat: 52.5322, Lon: 13.3843}, Status: models.StatusOffline},
		{ID: "C", Location: models.Location{Lat: 52.5318, Lon: 13.3838}, Status: models.StatusOffline},
		{ID: "D", Location: models.Location{Lat: 52.5350, Lon: 13.3900}, Status: models.StatusOnline},
	}

	// Example 1: detect affected zones
	fmt.Println("=== Affected zones (200 m, 50%) ===")
	zones, err := cluster.Detect(nodes, 200, 0.5)
	if err != nil {
		log.Fatal(err)
	}
	for _, z := range zones {
		fmt.Printf("  - %s at %s: %d/%d offline\n", z.NodeID, z.Location, z.Offline, z.Neighbors)
	}
	fmt.Printf("Distinct locations: %d\n", len(cluster.Locations(zones)))

	// Example 2: the same detection with every strategy
	fmt.Println("\n=== Strategies ===")
	for _, s := range cluster.Strategies() {
		zones, err := cluster.NewDetector(cluster.WithStrategy(s)).Detect(nodes, 200, 0.5)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  %-6s %d zones\n", s, len(zones))
	}

	// Example 3: neighborhood of a single router through the R-Tree
	fmt.Println("\n=== Routers within 500 m of D ===")
	index := rtree.NewNodeIndex(nodes, geo.Vincenty)
	near, err := index.Neighbors(3, 500)
	if err != nil {
		log.Fatal(err)
	}
	for _, i := range near {
		fmt.Printf("  - %s: %.1f m away\n", nodes[i].ID, geo.Vincenty(nodes[3].Location, nodes[i].Location))
	}

	// Example 4: simulate a postcode and summarize
	fmt.Println("\n=== Simulated routers around 10115 ===")
	simulated, err := source.NewSimulator(center, 42).Nodes(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	report, err := cluster.NewDetector().Report(simulated, 200, 0.5)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d routers, %d offline, %d affected zones\n",
		report.Summary.Nodes, report.Summary.OfflineNodes, len(report.Zones))

	// Save and reload the simulated snapshot
	fmt.Println("\n=== Snapshot round trip ===")
	path := "routers.gob"
	if err := source.SaveSnapshot(path, simulated); err != nil {
		log.Fatal(err)
	}
	defer os.Remove(path)
	loaded, err := source.LoadSnapshot(path)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Loaded snapshot with %d routers\n", len(loaded))
}
