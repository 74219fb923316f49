// Package source provides the node sets fed to outage detection: a seeded
// simulator, snapshot files and a fan-out over several providers.
package source

import (
	"context"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

// NodeSource yields the current set of nodes.
type NodeSource interface {
	Nodes(ctx context.Context) ([]models.Node, error)
}

// Func adapts a plain function to NodeSource.
type Func func(ctx context.Context) ([]models.Node, error)

func (f Func) Nodes(ctx context.Context) ([]models.Node, error) {
	return f(ctx)
}

// Static always returns the same nodes.
type Static []models.Node

func (s Static) Nodes(context.Context) ([]models.Node, error) {
	out := make([]models.Node, len(s))
	copy(out, s)
	return out, nil
}
