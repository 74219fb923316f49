package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/1F47E/geo-outage-rtree/pkg/postgis"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

var postgisInput string

var postgisCmd = &cobra.Command{
	Use:   "postgis",
	Short: "Manage the PostGIS router table",
}

var postgisInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create (or recreate) the outage_nodes table",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := postgis.NewStore(cmd.Context(), cfg.PostGIS.ConnString(), cfg.PostGIS.MaxConnections)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.InitSchema(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("✓ Schema created")
		return nil
	},
}

var postgisLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk load a snapshot into PostGIS",
	RunE: func(cmd *cobra.Command, args []string) error {
		if postgisInput == "" {
			return fmt.Errorf("--input is required")
		}
		nodes, err := source.LoadSnapshot(postgisInput)
		if err != nil {
			return err
		}

		store, err := postgis.NewStore(cmd.Context(), cfg.PostGIS.ConnString(), cfg.PostGIS.MaxConnections)
		if err != nil {
			return err
		}
		defer store.Close()

		start := time.Now()
		if err := store.BulkInsertNodes(cmd.Context(), nodes); err != nil {
			return err
		}
		elapsed := time.Since(start)
		fmt.Printf("✓ Inserted %d routers in %v (%.0f rows/sec)\n",
			len(nodes), elapsed, float64(len(nodes))/elapsed.Seconds())
		return nil
	},
}

var postgisStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show table size and row count",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := postgis.NewStore(cmd.Context(), cfg.PostGIS.ConnString(), cfg.PostGIS.MaxConnections)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		for _, key := range []string{"row_count", "table_size", "index_size"} {
			fmt.Printf("  %s: %v\n", key, stats[key])
		}
		return nil
	},
}

func init() {
	postgisLoadCmd.Flags().StringVarP(&postgisInput, "input", "i", "", "Snapshot file to load")
	postgisCmd.AddCommand(postgisInitCmd, postgisLoadCmd, postgisStatsCmd)
}
