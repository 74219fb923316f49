package postgis

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

const batchSize = 10000

// Store keeps nodes in a PostGIS table and serves them as a node source.
type Store struct {
	db *sql.DB
}

// NewStore opens a PostGIS connection. connStr is anything lib/pq accepts.
func NewStore(ctx context.Context, connStr string, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// InitSchema recreates the outage_nodes table and its spatial index.
func (s *Store) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,
		`DROP TABLE IF EXISTS outage_nodes;`,
		`CREATE TABLE outage_nodes (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('online', 'offline')),
			location GEOGRAPHY(POINT, 4326) NOT NULL
		);`,
		`CREATE INDEX idx_outage_nodes_location ON outage_nodes USING GIST(location);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// BulkInsertNodes appends nodes in batched transactions. Insertion order is
// preserved so Nodes returns them in the same order.
func (s *Store) BulkInsertNodes(ctx context.Context, nodes []models.Node) error {
	for start := 0; start < len(nodes); start += batchSize {
		end := start + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := s.insertBatch(ctx, nodes[start:end]); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE outage_nodes;"); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, nodes []models.Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outage_nodes (id, provider, status, location)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		status, err := n.Status.MarshalText()
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, n.ID, n.Provider, string(status), n.Location.Lon, n.Location.Lat); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Nodes returns every stored node in insertion order.
func (s *Store) Nodes(ctx context.Context) ([]models.Node, error) {
	return s.query(ctx, `
		SELECT id, provider, status, ST_Y(location::geometry), ST_X(location::geometry)
		FROM outage_nodes
		ORDER BY seq
	`)
}

// NodesWithin returns the nodes whose geodesic distance from center is at
// most radiusMeters, computed by PostGIS on the spheroid.
func (s *Store) NodesWithin(ctx context.Context, center models.Location, radiusMeters float64) ([]models.Node, error) {
	return s.query(ctx, `
		SELECT id, provider, status, ST_Y(location::geometry), ST_X(location::geometry)
		FROM outage_nodes
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3, true)
		ORDER BY seq
	`, center.Lon, center.Lat, radiusMeters)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	nodes := make([]models.Node, 0)
	for rows.Next() {
		var (
			n      models.Node
			status string
		)
		if err := rows.Scan(&n.ID, &n.Provider, &status, &n.Location.Lat, &n.Location.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := n.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return nodes, nil
}

// Count returns the number of stored nodes.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outage_nodes").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// Stats reports table and index sizes alongside the row count.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var tableSize, indexSize string
	err := s.db.QueryRowContext(ctx, `
		SELECT
			pg_size_pretty(pg_total_relation_size('outage_nodes')),
			pg_size_pretty(pg_indexes_size('outage_nodes'))
	`).Scan(&tableSize, &indexSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get table size: %w", err)
	}
	stats["table_size"] = tableSize
	stats["index_size"] = indexSize

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats["row_count"] = count

	return stats, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
