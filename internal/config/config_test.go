package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 200.0, cfg.Detection.RadiusMeters)
	assert.Equal(t, 0.5, cfg.Detection.ThresholdRatio)
	assert.Equal(t, "rtree", cfg.Detection.Strategy)
	assert.Equal(t, 100, cfg.Simulation.Points)
	assert.Equal(t, "10115", cfg.Simulation.Postcode)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
detection:
  radius_meters: 350
  strategy: grid
simulation:
  points: 250
  providers: [acme, globex]
server:
  refresh_interval: 30s
postcodes:
  "01067": [51.05, 13.74]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 350.0, cfg.Detection.RadiusMeters)
	assert.Equal(t, 0.5, cfg.Detection.ThresholdRatio, "unset keys keep defaults")
	assert.Equal(t, "grid", cfg.Detection.Strategy)
	assert.Equal(t, 250, cfg.Simulation.Points)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Simulation.Providers)
	assert.Equal(t, 30*time.Second, cfg.Server.RefreshInterval)
	assert.Equal(t, map[string]models.Location{"01067": {Lat: 51.05, Lon: 13.74}}, cfg.PostcodeLocations())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "detection:\n  radius_meters: 350\n")
	t.Setenv("OUTAGEMAP_RADIUS_METERS", "500")
	t.Setenv("OUTAGEMAP_THRESHOLD_RATIO", "0.75")
	t.Setenv("OUTAGEMAP_PROVIDERS", "a, b,,c")
	t.Setenv("OUTAGEMAP_REFRESH_INTERVAL", "5s")
	t.Setenv("OUTAGEMAP_POSTGRES_DSN", "postgres://localhost/outages")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500.0, cfg.Detection.RadiusMeters)
	assert.Equal(t, 0.75, cfg.Detection.ThresholdRatio)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Simulation.Providers)
	assert.Equal(t, 5*time.Second, cfg.Server.RefreshInterval)
	assert.Equal(t, "postgres://localhost/outages", cfg.PostGIS.ConnString())
}

func TestApplyEnvParseErrors(t *testing.T) {
	env := map[string]string{
		"OUTAGEMAP_RADIUS_METERS":    "wide",
		"OUTAGEMAP_SEED":             "1.5",
		"OUTAGEMAP_REFRESH_INTERVAL": "often",
	}
	err := Default().applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTAGEMAP_RADIUS_METERS")
	assert.Contains(t, err.Error(), "OUTAGEMAP_SEED")
	assert.Contains(t, err.Error(), "OUTAGEMAP_REFRESH_INTERVAL")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero radius", func(c *Config) { c.Detection.RadiusMeters = 0 }, "radius_meters"},
		{"threshold above one", func(c *Config) { c.Detection.ThresholdRatio = 1.5 }, "threshold_ratio"},
		{"unknown strategy", func(c *Config) { c.Detection.Strategy = "kd" }, "strategy"},
		{"unknown metric", func(c *Config) { c.Detection.Metric = "manhattan" }, "metric"},
		{"negative points", func(c *Config) { c.Simulation.Points = -5 }, "points"},
		{"no providers", func(c *Config) { c.Simulation.Providers = nil }, "providers"},
		{"negative interval", func(c *Config) { c.Server.RefreshInterval = -time.Second }, "refresh_interval"},
		{"bad postcode", func(c *Config) { c.Postcodes = map[string][2]float64{"x": {91, 0}} }, "postcodes.x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "detection: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "detection:\n  threshold_ratio: 2\n"))
	assert.Error(t, err)
}

func TestConnStringFromFields(t *testing.T) {
	p := Default().PostGIS
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=geodb sslmode=disable", p.ConnString())
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "OUTAGEMAP_TEST_DOTENV=loaded\n")
	t.Setenv("OUTAGEMAP_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("OUTAGEMAP_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "loaded", os.Getenv("OUTAGEMAP_TEST_DOTENV"))
}
