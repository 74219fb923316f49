package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/1F47E/geo-outage-rtree/internal/config"
	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/geocode"
	"github.com/1F47E/geo-outage-rtree/pkg/pipeline"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "outagemap",
	Short: "Detect clustered network outages from router status reports",
	Long: `outagemap flags neighborhoods in which a large share of routers is offline.
Nodes come from a simulator, a snapshot file or PostGIS; results are printed,
served over HTTP and exported as Prometheus metrics.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(simulateCmd, detectCmd, serveCmd, postgisCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		loaded.Log.Level = "debug"
	}
	cfg = loaded
	logger = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	return nil
}

func newGeocoder() (geocode.Geocoder, error) {
	table := geocode.NewTable()
	for code, loc := range cfg.PostcodeLocations() {
		if err := table.Add(code, loc); err != nil {
			return nil, err
		}
	}
	return geocode.WithFallback(table, geocode.Berlin, logger), nil
}

func newDetector(strategyName string) (*cluster.Detector, error) {
	if strategyName == "" {
		strategyName = cfg.Detection.Strategy
	}
	strategy, err := cluster.ParseStrategy(strategyName)
	if err != nil {
		return nil, err
	}
	metric, err := geo.ParseMetric(cfg.Detection.Metric)
	if err != nil {
		return nil, err
	}
	return cluster.NewDetector(cluster.WithStrategy(strategy), cluster.WithMetric(metric)), nil
}

func simulation() pipeline.Simulation {
	return pipeline.Simulation{
		Points:             cfg.Simulation.Points,
		SpreadDeg:          cfg.Simulation.SpreadDeg,
		OfflineProbability: cfg.Simulation.OfflineProbability,
		Seed:               cfg.Simulation.Seed,
		Providers:          cfg.Simulation.Providers,
	}
}
