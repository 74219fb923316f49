package source

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

// snapshotData is the serializable form of a node set.
type snapshotData struct {
	Nodes   []models.Node
	Count   int
	SavedAt time.Time
}

func isJSON(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".json")
}

// SaveSnapshot writes nodes to filename. Files ending in .json hold a plain
// JSON array of nodes; anything else is written as a gob snapshot.
func SaveSnapshot(filename string, nodes []models.Node) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if isJSON(filename) {
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		if err := enc.Encode(nodes); err != nil {
			return fmt.Errorf("failed to encode nodes: %w", err)
		}
		return file.Close()
	}

	data := snapshotData{
		Nodes:   nodes,
		Count:   len(nodes),
		SavedAt: time.Now().UTC(),
	}
	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return file.Close()
}

// LoadSnapshot reads nodes written by SaveSnapshot.
func LoadSnapshot(filename string) ([]models.Node, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if isJSON(filename) {
		var nodes []models.Node
		if err := json.NewDecoder(file).Decode(&nodes); err != nil {
			return nil, fmt.Errorf("failed to decode nodes: %w", err)
		}
		return nodes, nil
	}

	var data snapshotData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	if data.Count != len(data.Nodes) {
		return nil, fmt.Errorf("corrupt snapshot: header says %d nodes, found %d", data.Count, len(data.Nodes))
	}
	return data.Nodes, nil
}

// SnapshotFile is a NodeSource backed by a snapshot on disk. The file is
// re-read on every call.
type SnapshotFile struct {
	Path string
}

func (s SnapshotFile) Nodes(ctx context.Context) ([]models.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadSnapshot(s.Path)
}
