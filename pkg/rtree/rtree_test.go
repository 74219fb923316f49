package rtree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

func cityNodes() []models.Node {
	return []models.Node{
		{ID: "SF", Location: models.Location{Lat: 37.7749, Lon: -122.4194}},
		{ID: "Oakland", Location: models.Location{Lat: 37.8044, Lon: -122.2712}},    // ~13km
		{ID: "San Jose", Location: models.Location{Lat: 37.3382, Lon: -121.8863}},   // ~48km
		{ID: "Sacramento", Location: models.Location{Lat: 38.5816, Lon: -121.4944}}, // ~120km
		{ID: "LA", Location: models.Location{Lat: 34.0522, Lon: -118.2437}},         // ~560km
		{ID: "NYC", Location: models.Location{Lat: 40.7128, Lon: -74.0060}},
	}
}

func TestNewNodeIndex(t *testing.T) {
	index := NewNodeIndex(nil, nil)
	assert.NotNil(t, index)
	assert.Equal(t, 0, index.Count())

	index = NewNodeIndex(cityNodes(), geo.Haversine)
	assert.Equal(t, 6, index.Count())
}

func TestQueryBox(t *testing.T) {
	index := NewNodeIndex(cityNodes(), nil)

	// Query box covering California
	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: 32.0, Lon: -125.0},
		TopRight:   models.Location{Lat: 42.0, Lon: -114.0},
	}

	results, err := index.QueryBox(box)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, results)

	_, err = index.QueryBox(models.BoundingBox{
		BottomLeft: models.Location{Lat: 40, Lon: -120},
		TopRight:   models.Location{Lat: 30, Lon: -110},
	})
	assert.Error(t, err)
}

func TestQueryRadius(t *testing.T) {
	index := NewNodeIndex(cityNodes(), nil)
	sf := models.Location{Lat: 37.7749, Lon: -122.4194}

	testCases := []struct {
		name     string
		radius   float64
		expected []int
	}{
		{"10km radius", 10_000, []int{0}},
		{"20km radius", 20_000, []int{0, 1}},
		{"80km radius", 80_000, []int{0, 1, 2}},
		{"150km radius", 150_000, []int{0, 1, 2, 3}},
		{"1000km radius", 1_000_000, []int{0, 1, 2, 3, 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := index.QueryRadius(sf, tc.radius)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, results)
		})
	}
}

func TestQueryRadiusAcrossAntimeridian(t *testing.T) {
	nodes := []models.Node{
		{ID: "east", Location: models.Location{Lat: -16.5, Lon: 179.999}},
		{ID: "west", Location: models.Location{Lat: -16.5, Lon: -179.999}},
		{ID: "edge", Location: models.Location{Lat: -16.5, Lon: 180}},
		{ID: "far", Location: models.Location{Lat: -16.5, Lon: 179.9}},
	}
	index := NewNodeIndex(nodes, nil)

	results, err := index.Neighbors(0, 500)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, results)

	results, err = index.Neighbors(1, 500)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, results)
}

func TestQueryRadiusNearPole(t *testing.T) {
	nodes := []models.Node{
		{ID: "a", Location: models.Location{Lat: 89.9995, Lon: 0}},
		{ID: "b", Location: models.Location{Lat: 89.9995, Lon: 180}},
		{ID: "pole", Location: models.Location{Lat: 90, Lon: 42}},
		{ID: "far", Location: models.Location{Lat: 89.9, Lon: 0}},
	}
	index := NewNodeIndex(nodes, nil)

	// a and b sit on opposite sides of the pole, ~110 m apart
	results, err := index.Neighbors(0, 200)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, results)
}

func TestNeighborsOutOfRange(t *testing.T) {
	index := NewNodeIndex(cityNodes(), nil)
	_, err := index.Neighbors(6, 100)
	assert.Error(t, err)
	_, err = index.Neighbors(-1, 100)
	assert.Error(t, err)
}

func TestQueryRadiusMatchesScan(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	nodes := generateRandomNodes(r, 2000)
	index := NewNodeIndex(nodes, geo.Vincenty)

	for q := 0; q < 50; q++ {
		center := nodes[r.Intn(len(nodes))].Location
		radius := r.Float64()*200_000 + 1_000

		var want []int
		for j := range nodes {
			if geo.Vincenty(center, nodes[j].Location) <= radius {
				want = append(want, j)
			}
		}

		got, err := index.QueryRadius(center, radius)
		require.NoError(t, err)
		assert.Equal(t, want, got, "center %v radius %.0f", center, radius)
	}
}

func TestConcurrentQueries(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	index := NewNodeIndex(generateRandomNodes(r, 10000), nil)

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func(seed int64) {
			defer func() { done <- true }()
			qr := rand.New(rand.NewSource(seed))
			center := models.Location{Lat: qr.Float64()*20 + 30, Lon: qr.Float64()*40 - 120}
			_, err := index.QueryRadius(center, qr.Float64()*100_000+10_000)
			assert.NoError(t, err)
		}(int64(i))
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}

// Helper function to generate random nodes
func generateRandomNodes(r *rand.Rand, n int) []models.Node {
	nodes := make([]models.Node, n)
	for i := 0; i < n; i++ {
		nodes[i] = models.Node{
			ID: fmt.Sprintf("node_%d", i),
			Location: models.Location{
				Lat: r.Float64()*20 + 30,  // 30-50
				Lon: r.Float64()*40 - 120, // -120 to -80
			},
		}
	}
	return nodes
}

// Benchmarks
func BenchmarkNewNodeIndex(b *testing.B) {
	sizes := []int{1000, 10000, 100000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%d_nodes", size), func(b *testing.B) {
			nodes := generateRandomNodes(rand.New(rand.NewSource(1)), size)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_ = NewNodeIndex(nodes, nil)
			}
		})
	}
}

func BenchmarkQueryRadius(b *testing.B) {
	index := NewNodeIndex(generateRandomNodes(rand.New(rand.NewSource(1)), 100000), nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		center := models.Location{Lat: 37.5, Lon: -112.5}
		_, _ = index.QueryRadius(center, 50_000)
	}
}
