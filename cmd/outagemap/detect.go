package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/pipeline"
	"github.com/1F47E/geo-outage-rtree/pkg/postgis"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

var (
	detectInput     string
	detectPostGIS   bool
	detectPostcode  string
	detectRadius    float64
	detectThreshold float64
	detectStrategy  string
	detectJSON      bool
	detectLimit     int
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find outage clusters",
	Long: `Load routers from a snapshot file (--input), PostGIS (--postgis) or a fresh
simulation around --postcode, and report every router whose neighborhood is
mostly offline.`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVarP(&detectInput, "input", "i", "", "Snapshot file (.gob or .json)")
	detectCmd.Flags().BoolVar(&detectPostGIS, "postgis", false, "Read routers from PostGIS")
	detectCmd.Flags().StringVarP(&detectPostcode, "postcode", "p", "", "Simulate around this postcode (default from config)")
	detectCmd.Flags().Float64VarP(&detectRadius, "radius", "r", 0, "Neighborhood radius in meters (default from config)")
	detectCmd.Flags().Float64VarP(&detectThreshold, "threshold", "t", 0, "Offline ratio threshold (default from config)")
	detectCmd.Flags().StringVarP(&detectStrategy, "strategy", "s", "", "Neighbor search: rtree, grid or naive")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Output results as JSON")
	detectCmd.Flags().IntVarP(&detectLimit, "limit", "l", 20, "Maximum number of zones to print")
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	params := pipeline.Params{
		RadiusMeters:   cfg.Detection.RadiusMeters,
		ThresholdRatio: cfg.Detection.ThresholdRatio,
	}
	if cmd.Flags().Changed("radius") {
		params.RadiusMeters = detectRadius
	}
	if cmd.Flags().Changed("threshold") {
		params.ThresholdRatio = detectThreshold
	}

	detector, err := newDetector(detectStrategy)
	if err != nil {
		return err
	}

	label, nodes, err := loadNodes(ctx)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "nodes loaded", logging.String("source", label), logging.Int("nodes", len(nodes)))

	start := time.Now()
	report, err := detector.Report(nodes, params.RadiusMeters, params.ThresholdRatio)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	took := time.Since(start)

	if detectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	fmt.Print(renderReport(reportView{
		Source:   label,
		Strategy: detector.Strategy().String(),
		Params:   params,
		Report:   report,
		Took:     took,
		Limit:    detectLimit,
	}, color))
	return nil
}

func loadNodes(ctx context.Context) (string, []models.Node, error) {
	switch {
	case detectInput != "":
		nodes, err := source.SnapshotFile{Path: detectInput}.Nodes(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		return detectInput, nodes, nil

	case detectPostGIS:
		store, err := postgis.NewStore(ctx, cfg.PostGIS.ConnString(), cfg.PostGIS.MaxConnections)
		if err != nil {
			return "", nil, err
		}
		defer store.Close()
		nodes, err := store.Nodes(ctx)
		if err != nil {
			return "", nil, err
		}
		return "postgis", nodes, nil

	default:
		postcode := detectPostcode
		if postcode == "" {
			postcode = cfg.Simulation.Postcode
		}
		geocoder, err := newGeocoder()
		if err != nil {
			return "", nil, err
		}
		center, err := geocoder.Lookup(postcode)
		if err != nil {
			return "", nil, err
		}
		src, err := pipeline.SimulatedSource(simulation(), logger, nil)(center)
		if err != nil {
			return "", nil, err
		}
		nodes, err := src.Nodes(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("simulation failed: %w", err)
		}
		return "simulation " + postcode, nodes, nil
	}
}

// reportView is everything the terminal report shows.
type reportView struct {
	Source   string
	Strategy string
	Params   pipeline.Params
	Report   cluster.Report
	Took     time.Duration
	Limit    int
}
