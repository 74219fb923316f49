package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/1F47E/geo-outage-rtree/internal/api"
	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/metrics"
	"github.com/1F47E/geo-outage-rtree/pkg/pipeline"
	"github.com/1F47E/geo-outage-rtree/pkg/postgis"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

var (
	serveAddr     string
	serveInput    string
	servePostGIS  bool
	servePostcode string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve detection over HTTP and refresh periodically",
	Long: `Start the HTTP API (/healthz, /metrics, /v1/detect, /v1/snapshot, /v1/refresh)
and refresh the outage snapshot on the configured interval.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (default from config)")
	serveCmd.Flags().StringVarP(&serveInput, "input", "i", "", "Serve routers from a snapshot file instead of simulating")
	serveCmd.Flags().BoolVar(&servePostGIS, "postgis", false, "Serve routers from PostGIS instead of simulating")
	serveCmd.Flags().StringVarP(&servePostcode, "postcode", "p", "", "Postcode for the refresh loop (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	postcode := servePostcode
	if postcode == "" {
		postcode = cfg.Simulation.Postcode
	}

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}
	geocoder, err := newGeocoder()
	if err != nil {
		return err
	}
	detector, err := newDetector("")
	if err != nil {
		return err
	}
	metric, err := geo.ParseMetric(cfg.Detection.Metric)
	if err != nil {
		return err
	}

	var src pipeline.SourceFunc
	switch {
	case serveInput != "":
		src = pipeline.FixedSource(source.SnapshotFile{Path: serveInput})
	case servePostGIS:
		store, err := postgis.NewStore(ctx, cfg.PostGIS.ConnString(), cfg.PostGIS.MaxConnections)
		if err != nil {
			return err
		}
		defer store.Close()
		src = pipeline.FixedSource(store)
	default:
		src = pipeline.SimulatedSource(simulation(), logger, collector)
	}

	runner := &pipeline.Runner{
		Geocoder: geocoder,
		Source:   src,
		Detector: detector,
		Params: pipeline.Params{
			RadiusMeters:   cfg.Detection.RadiusMeters,
			ThresholdRatio: cfg.Detection.ThresholdRatio,
		},
		Metrics: collector,
		Log:     logger.With(logging.String("component", "pipeline")),
		State:   &pipeline.State{},
	}

	server := &http.Server{
		Addr: addr,
		Handler: api.New(api.Options{
			Runner:          runner,
			Metrics:         collector,
			Log:             logger.With(logging.String("component", "api")),
			Metric:          metric,
			DefaultPostcode: postcode,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if interval := cfg.Server.RefreshInterval; interval > 0 {
		go runner.Watch(ctx, interval, postcode)
	} else if _, err := runner.Refresh(ctx, postcode); err != nil {
		logger.Warn(ctx, "initial refresh failed", logging.Err(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server listening", logging.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
