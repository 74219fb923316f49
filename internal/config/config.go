// Package config loads the outagemap configuration from YAML, .env files and
// OUTAGEMAP_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

const envPrefix = "OUTAGEMAP_"

// Config holds the application configuration.
type Config struct {
	Detection  Detection             `yaml:"detection"`
	Simulation Simulation            `yaml:"simulation"`
	Server     Server                `yaml:"server"`
	PostGIS    PostGIS               `yaml:"postgis"`
	Log        Log                   `yaml:"log"`
	Postcodes  map[string][2]float64 `yaml:"postcodes"`
}

type Detection struct {
	RadiusMeters   float64 `yaml:"radius_meters"`
	ThresholdRatio float64 `yaml:"threshold_ratio"`
	Strategy       string  `yaml:"strategy"`
	Metric         string  `yaml:"metric"`
}

type Simulation struct {
	Points             int      `yaml:"points"`
	SpreadDeg          float64  `yaml:"spread_deg"`
	OfflineProbability float64  `yaml:"offline_probability"`
	Seed               int64    `yaml:"seed"` // 0 draws a fresh seed per run
	Postcode           string   `yaml:"postcode"`
	Providers          []string `yaml:"providers"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type PostGIS struct {
	DSN            string `yaml:"dsn"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	MaxConnections int    `yaml:"max_connections"`
}

// ConnString returns DSN when set, otherwise a lib/pq keyword string built
// from the individual fields.
func (p PostGIS) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.Database)
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration: 200 m neighborhoods, a 50%
// offline threshold and 100 simulated routers around Berlin Mitte.
func Default() *Config {
	return &Config{
		Detection: Detection{
			RadiusMeters:   200,
			ThresholdRatio: 0.5,
			Strategy:       cluster.StrategyRTree.String(),
			Metric:         "vincenty",
		},
		Simulation: Simulation{
			Points:             100,
			SpreadDeg:          0.05,
			OfflineProbability: 0.5,
			Postcode:           "10115",
			Providers:          []string{"simulated"},
		},
		Server: Server{
			Addr:            ":8080",
			RefreshInterval: time.Minute,
		},
		PostGIS: PostGIS{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Password:       "postgres",
			Database:       "geodb",
			MaxConnections: 25,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadDotEnv loads the given .env files (".env" when none are given) into the
// process environment. Missing files are ignored and variables that are
// already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(envPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int64) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	float("RADIUS_METERS", &c.Detection.RadiusMeters)
	float("THRESHOLD_RATIO", &c.Detection.ThresholdRatio)
	str("STRATEGY", &c.Detection.Strategy)
	str("METRIC", &c.Detection.Metric)

	points := int64(c.Simulation.Points)
	integer("POINTS", &points)
	c.Simulation.Points = int(points)
	float("SPREAD_DEG", &c.Simulation.SpreadDeg)
	float("OFFLINE_PROBABILITY", &c.Simulation.OfflineProbability)
	integer("SEED", &c.Simulation.Seed)
	str("POSTCODE", &c.Simulation.Postcode)
	if v, ok := lookup(envPrefix + "PROVIDERS"); ok {
		c.Simulation.Providers = splitList(v)
	}

	str("ADDR", &c.Server.Addr)
	if v, ok := lookup(envPrefix + "REFRESH_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREFRESH_INTERVAL: %w", envPrefix, err))
		} else {
			c.Server.RefreshInterval = d
		}
	}

	str("POSTGRES_DSN", &c.PostGIS.DSN)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	var errs []error

	d := c.Detection
	if math.IsNaN(d.RadiusMeters) || math.IsInf(d.RadiusMeters, 0) || d.RadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("detection.radius_meters must be a positive finite number, got %v", d.RadiusMeters))
	}
	if math.IsNaN(d.ThresholdRatio) || d.ThresholdRatio < 0 || d.ThresholdRatio > 1 {
		errs = append(errs, fmt.Errorf("detection.threshold_ratio must lie in [0, 1], got %v", d.ThresholdRatio))
	}
	if _, err := cluster.ParseStrategy(d.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("detection.strategy: %w", err))
	}
	if _, err := geo.ParseMetric(d.Metric); err != nil {
		errs = append(errs, fmt.Errorf("detection.metric: %w", err))
	}

	s := c.Simulation
	if s.Points < 0 {
		errs = append(errs, fmt.Errorf("simulation.points must not be negative, got %d", s.Points))
	}
	if math.IsNaN(s.SpreadDeg) || s.SpreadDeg < 0 || s.SpreadDeg > 90 {
		errs = append(errs, fmt.Errorf("simulation.spread_deg must lie in [0, 90], got %v", s.SpreadDeg))
	}
	if math.IsNaN(s.OfflineProbability) || s.OfflineProbability < 0 || s.OfflineProbability > 1 {
		errs = append(errs, fmt.Errorf("simulation.offline_probability must lie in [0, 1], got %v", s.OfflineProbability))
	}
	if len(s.Providers) == 0 {
		errs = append(errs, errors.New("simulation.providers must name at least one provider"))
	}

	if c.Server.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("server.refresh_interval must not be negative, got %v", c.Server.RefreshInterval))
	}

	for code, ll := range c.Postcodes {
		if err := geo.ValidateLocation(models.Location{Lat: ll[0], Lon: ll[1]}); err != nil {
			errs = append(errs, fmt.Errorf("postcodes.%s: %w", code, err))
		}
	}

	return errors.Join(errs...)
}

// PostcodeLocations returns the configured postcode table entries.
func (c *Config) PostcodeLocations() map[string]models.Location {
	out := make(map[string]models.Location, len(c.Postcodes))
	for code, ll := range c.Postcodes {
		out[code] = models.Location{Lat: ll[0], Lon: ll[1]}
	}
	return out
}
