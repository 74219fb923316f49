package geo

import (
	"math"
	"testing"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     models.Location
		expected float64
		delta    float64
	}{
		{
			name:     "Same point",
			a:        models.Location{Lat: 37.7749, Lon: -122.4194},
			b:        models.Location{Lat: 37.7749, Lon: -122.4194},
			expected: 0,
			delta:    1e-9,
		},
		{
			name:     "SF to Oakland",
			a:        models.Location{Lat: 37.7749, Lon: -122.4194},
			b:        models.Location{Lat: 37.8044, Lon: -122.2712},
			expected: 13_400,
			delta:    500,
		},
		{
			name:     "SF to LA",
			a:        models.Location{Lat: 37.7749, Lon: -122.4194},
			b:        models.Location{Lat: 34.0522, Lon: -118.2437},
			expected: 559_000,
			delta:    5_000,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, Haversine(tc.a, tc.b), tc.delta)
		})
	}
}

func TestVincenty(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     models.Location
		expected float64
		delta    float64
	}{
		{
			name:     "Same point",
			a:        models.Location{Lat: 52.532, Lon: 13.384},
			b:        models.Location{Lat: 52.532, Lon: 13.384},
			expected: 0,
			delta:    0,
		},
		{
			// Vincenty (1975) test line: Flinders Peak to Buninyong.
			name:     "Flinders Peak to Buninyong",
			a:        models.Location{Lat: -37.95103341666667, Lon: 144.42486788888888},
			b:        models.Location{Lat: -37.65282113888889, Lon: 143.92649552777777},
			expected: 54_972.271,
			delta:    0.01,
		},
		{
			name:     "One degree of latitude at the equator",
			a:        models.Location{Lat: 0, Lon: 0},
			b:        models.Location{Lat: 1, Lon: 0},
			expected: 110_574.4,
			delta:    1,
		},
		{
			name:     "Across the antimeridian",
			a:        models.Location{Lat: 0, Lon: 179.9995},
			b:        models.Location{Lat: 0, Lon: -179.9995},
			expected: 111.32,
			delta:    0.1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, Vincenty(tc.a, tc.b), tc.delta)
		})
	}
}

func TestVincentyNearAntipodal(t *testing.T) {
	a := models.Location{Lat: 0, Lon: 0}
	b := models.Location{Lat: 0.5, Lon: 179.7}

	d := Vincenty(a, b)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusMeters, d, 150_000)
}

func TestMetricsAgreeAtCityScale(t *testing.T) {
	a := models.Location{Lat: 52.5200, Lon: 13.4050}
	b := models.Location{Lat: 52.5245, Lon: 13.4100}

	// spherical and ellipsoidal distances differ by well under 1% at this scale
	assert.InEpsilon(t, Vincenty(a, b), Haversine(a, b), 0.01)
}

func TestParseMetric(t *testing.T) {
	for _, name := range []string{"", "vincenty", "WGS84", "ellipsoid"} {
		m, err := ParseMetric(name)
		require.NoError(t, err, name)
		assert.Equal(t, Vincenty(models.Location{}, models.Location{Lat: 1}), m(models.Location{}, models.Location{Lat: 1}))
	}

	m, err := ParseMetric("haversine")
	require.NoError(t, err)
	assert.Equal(t, Haversine(models.Location{}, models.Location{Lat: 1}), m(models.Location{}, models.Location{Lat: 1}))

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}

func BenchmarkVincenty(b *testing.B) {
	p1 := models.Location{Lat: 52.5200, Lon: 13.4050}
	p2 := models.Location{Lat: 52.5300, Lon: 13.4150}
	for i := 0; i < b.N; i++ {
		_ = Vincenty(p1, p2)
	}
}

func BenchmarkHaversine(b *testing.B) {
	p1 := models.Location{Lat: 52.5200, Lon: 13.4050}
	p2 := models.Location{Lat: 52.5300, Lon: 13.4150}
	for i := 0; i < b.N; i++ {
		_ = Haversine(p1, p2)
	}
}
