package source

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

var berlinMitte = models.Location{Lat: 52.532, Lon: 13.384}

func TestSimulatorDefaults(t *testing.T) {
	sim := NewSimulator(berlinMitte, 42)
	nodes, err := sim.Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, DefaultPoints)

	offline := models.NodeSet(nodes).CountOffline()
	assert.Greater(t, offline, 20)
	assert.Less(t, offline, 80)

	ids := make(map[string]bool)
	for _, n := range nodes {
		assert.InDelta(t, berlinMitte.Lat, n.Location.Lat, DefaultSpreadDeg)
		assert.InDelta(t, berlinMitte.Lon, n.Location.Lon, DefaultSpreadDeg)
		assert.Equal(t, "simulated", n.Provider)
		_, err := uuid.Parse(n.ID)
		assert.NoError(t, err)
		ids[n.ID] = true
	}
	assert.Len(t, ids, len(nodes))
}

func TestSimulatorDeterministic(t *testing.T) {
	a, err := NewSimulator(berlinMitte, 7).Nodes(context.Background())
	require.NoError(t, err)
	b, err := NewSimulator(berlinMitte, 7).Nodes(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different nodes (-a +b):\n%s", diff)
	}

	c, err := NewSimulator(berlinMitte, 8).Nodes(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestSimulatorOfflineProbability(t *testing.T) {
	sim := NewSimulator(berlinMitte, 1)
	sim.OfflineProbability = 0
	nodes, err := sim.Nodes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, models.NodeSet(nodes).CountOffline())

	sim.OfflineProbability = 1
	nodes, err = sim.Nodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(nodes), models.NodeSet(nodes).CountOffline())
}

func TestSimulatorWrapsNearEdges(t *testing.T) {
	sim := NewSimulator(models.Location{Lat: 89.99, Lon: 179.99}, 3)
	sim.Points = 500
	sim.SpreadDeg = 0.5
	nodes, err := sim.Nodes(context.Background())
	require.NoError(t, err)
	for _, n := range nodes {
		assert.NoError(t, geo.ValidateLocation(n.Location))
	}
}

func TestSimulatorValidation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Simulator)
	}{
		{"nan center", func(s *Simulator) { s.Center.Lat = math.NaN() }},
		{"center out of range", func(s *Simulator) { s.Center.Lon = 200 }},
		{"negative points", func(s *Simulator) { s.Points = -1 }},
		{"negative spread", func(s *Simulator) { s.SpreadDeg = -0.1 }},
		{"probability above one", func(s *Simulator) { s.OfflineProbability = 1.5 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sim := NewSimulator(berlinMitte, 1)
			tc.mutate(sim)
			_, err := sim.Nodes(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestSimulatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulator(berlinMitte, 1).Nodes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotRoundTrip(t *testing.T) {
	nodes, err := NewSimulator(berlinMitte, 11).Nodes(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"nodes.gob", "nodes.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveSnapshot(path, nodes))

			loaded, err := SnapshotFile{Path: path}.Nodes(context.Background())
			require.NoError(t, err)
			if diff := cmp.Diff(nodes, loaded); diff != "" {
				t.Fatalf("snapshot mismatch (-saved +loaded):\n%s", diff)
			}
		})
	}
}

func TestSnapshotJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.json")
	nodes := []models.Node{{ID: "r1", Location: berlinMitte, Status: models.StatusOffline}}
	require.NoError(t, SaveSnapshot(path, nodes))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status": "offline"`)
}

func TestLoadSnapshotErrors(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"status":"flickering"}]`), 0o644))
	_, err = LoadSnapshot(path)
	assert.Error(t, err)
}

func TestMulti(t *testing.T) {
	var hooked []string
	m := NewMulti([]Provider{
		{Name: "alpha", Source: Static{{ID: "a1"}, {ID: "a2", Provider: "custom"}}},
		{Name: "broken", Source: Func(func(context.Context) ([]models.Node, error) {
			return nil, errors.New("timeout")
		})},
		{Name: "beta", Source: Static{{ID: "b1"}}},
	}, WithFailureHook(func(p string) { hooked = append(hooked, p) }))

	nodes, err := m.Nodes(context.Background())
	require.NoError(t, err)

	var got []string
	for _, n := range nodes {
		got = append(got, n.ID+"@"+n.Provider)
	}
	assert.Equal(t, []string{"a1@alpha", "a2@custom", "b1@beta"}, got)

	failures := m.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].Provider)
	assert.EqualError(t, failures[0], "provider broken: timeout")
	assert.Equal(t, []string{"broken"}, hooked)
}

func TestMultiAllFail(t *testing.T) {
	boom := errors.New("boom")
	failing := Func(func(context.Context) ([]models.Node, error) { return nil, boom })
	m := NewMulti([]Provider{{Name: "a", Source: failing}, {Name: "b", Source: failing}})

	_, err := m.Nodes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, m.Failures(), 2)
}

func TestMultiEmpty(t *testing.T) {
	nodes, err := NewMulti(nil).Nodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.NotNil(t, nodes)
}
