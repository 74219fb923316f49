package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/geocode"
	"github.com/1F47E/geo-outage-rtree/pkg/metrics"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/pipeline"
	"github.com/1F47E/geo-outage-rtree/pkg/source"
)

func newTestServer(t *testing.T, geocoder geocode.Geocoder, src pipeline.SourceFunc) *httptest.Server {
	t.Helper()
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	runner := &pipeline.Runner{
		Geocoder: geocoder,
		Source:   src,
		Detector: cluster.NewDetector(),
		Params:   pipeline.Params{RadiusMeters: 200, ThresholdRatio: 0.5},
		Metrics:  m,
		Log:      logging.Noop(),
		State:    &pipeline.State{},
	}
	srv := httptest.NewServer(New(Options{
		Runner:          runner,
		Metrics:         m,
		DefaultPostcode: "10115",
	}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func simulated() pipeline.SourceFunc {
	return pipeline.SimulatedSource(pipeline.Simulation{
		Points:             100,
		SpreadDeg:          0.05,
		OfflineProbability: 0.5,
		Seed:               1,
	}, logging.Noop(), nil)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, geocode.NewTable(), simulated())

	health := func() map[string]any {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	before := health()
	assert.Equal(t, true, before["ok"])
	assert.NotContains(t, before, "last_refresh")

	resp := postJSON(t, srv.URL+"/v1/refresh?postcode=20095", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	after := health()
	assert.Equal(t, "20095", after["last_postcode"])
	refreshed, err := time.Parse(time.RFC3339Nano, after["last_refresh"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), refreshed, time.Minute)
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	s := New(Options{Log: logging.New(logging.Config{Format: "json", Output: &buf})})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil)
	s.writeJSON(rec, req, http.StatusOK, map[string]float64{"ratio": math.NaN()})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "failed to encode response")
	assert.Contains(t, buf.String(), "/v1/snapshot")
}

func TestDetect(t *testing.T) {
	srv := newTestServer(t, geocode.NewTable(), simulated())
	center := models.Location{Lat: 52.52, Lon: 13.405}

	resp := postJSON(t, srv.URL+"/v1/detect", map[string]any{
		"nodes": []models.Node{
			{ID: "a", Location: center, Status: models.StatusOffline},
			{ID: "b", Location: center, Status: models.StatusOffline},
			{ID: "c", Location: center, Status: models.StatusOnline},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out DetectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Zones, 3)
	assert.Equal(t, []models.Location{center}, out.Locations)
	assert.Equal(t, 3, out.Summary.Nodes)
	assert.Equal(t, "rtree", out.Strategy)
}

func TestDetectOverrides(t *testing.T) {
	srv := newTestServer(t, geocode.NewTable(), simulated())

	resp := postJSON(t, srv.URL+"/v1/detect", map[string]any{
		"nodes": []map[string]any{
			{"location": map[string]float64{"lat": 52.52, "lon": 13.405}, "status": "offline"},
			{"location": map[string]float64{"lat": 52.5245, "lon": 13.405}, "status": "offline"},
		},
		"radius_meters":   1000,
		"threshold_ratio": 1,
		"strategy":        "grid",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out DetectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Zones, 2)
	assert.Equal(t, 2, out.Zones[0].Neighbors)
	assert.Equal(t, "grid", out.Strategy)
}

func TestDetectBadRequests(t *testing.T) {
	srv := newTestServer(t, geocode.NewTable(), simulated())

	testCases := []struct {
		name string
		body any
	}{
		{"negative radius", map[string]any{"nodes": []any{}, "radius_meters": -1}},
		{"threshold above one", map[string]any{"nodes": []any{}, "threshold_ratio": 1.5}},
		{"invalid location", map[string]any{"nodes": []map[string]any{
			{"location": map[string]float64{"lat": 91, "lon": 0}, "status": "online"},
		}}},
		{"unknown status", map[string]any{"nodes": []map[string]any{
			{"location": map[string]float64{"lat": 1, "lon": 0}, "status": "degraded"},
		}}},
		{"unknown strategy", map[string]any{"nodes": []any{}, "strategy": "quadtree"}},
		{"unknown field", map[string]any{"points": []any{}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/v1/detect", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var out errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.NotEmpty(t, out.Error)
		})
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	srv := newTestServer(t, geocode.WithFallback(geocode.NewTable(), geocode.Berlin, nil), simulated())

	resp, err := http.Get(srv.URL + "/v1/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/v1/refresh?postcode=80331", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap pipeline.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "80331", snap.Postcode)
	assert.Equal(t, models.Location{Lat: 48.137, Lon: 11.575}, snap.Center)
	assert.Len(t, snap.Nodes, 100)
	assert.Equal(t, len(snap.Zones), snap.Summary.AffectedZones)

	// refresh without a postcode reuses the last one
	resp = postJSON(t, srv.URL+"/v1/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "80331", snap.Postcode)
}

func TestSnapshotForPostcode(t *testing.T) {
	srv := newTestServer(t, geocode.NewTable(), simulated())

	resp, err := http.Get(srv.URL + "/v1/snapshot?postcode=45127")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/v1/snapshot?postcode=00000")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestRefreshSourceFailure(t *testing.T) {
	broken := pipeline.FixedSource(source.Func(func(context.Context) ([]models.Node, error) {
		return nil, errors.New("upstream down")
	}))
	srv := newTestServer(t, geocode.NewTable(), broken)

	resp := postJSON(t, srv.URL+"/v1/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, geocode.NewTable(), simulated())
	postJSON(t, srv.URL+"/v1/refresh?postcode=10115", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "outage_nodes 100")
	assert.Contains(t, string(body), `outage_detections_total{result="ok",strategy="rtree"} 1`)
}
