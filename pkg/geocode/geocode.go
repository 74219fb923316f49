// Package geocode resolves postcodes to coordinates from a static table.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

// ErrUnknownPostcode is returned when a postcode is not in the table.
var ErrUnknownPostcode = errors.New("unknown postcode")

// Berlin is returned by WithFallback for postcodes the table does not know.
var Berlin = models.Location{Lat: 52.5200, Lon: 13.4050}

// Geocoder turns a postcode into a coordinate.
type Geocoder interface {
	Lookup(postcode string) (models.Location, error)
}

// Table is an in-memory postcode table. It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[string]models.Location
}

// NewTable returns a table seeded with the built-in German postcodes.
func NewTable() *Table {
	return &Table{entries: map[string]models.Location{
		"10115": {Lat: 52.532, Lon: 13.384}, // Berlin Mitte
		"20095": {Lat: 53.550, Lon: 10.000}, // Hamburg
		"80331": {Lat: 48.137, Lon: 11.575}, // Muenchen
		"45127": {Lat: 51.455, Lon: 7.011},  // Essen
	}}
}

// Add registers or replaces a postcode.
func (t *Table) Add(postcode string, loc models.Location) error {
	postcode = strings.TrimSpace(postcode)
	if postcode == "" {
		return fmt.Errorf("empty postcode")
	}
	if err := geo.ValidateLocation(loc); err != nil {
		return fmt.Errorf("postcode %s: %w", postcode, err)
	}
	t.mu.Lock()
	t.entries[postcode] = loc
	t.mu.Unlock()
	return nil
}

// Lookup implements Geocoder.
func (t *Table) Lookup(postcode string) (models.Location, error) {
	t.mu.RLock()
	loc, ok := t.entries[strings.TrimSpace(postcode)]
	t.mu.RUnlock()
	if !ok {
		return models.Location{}, fmt.Errorf("%w: %q", ErrUnknownPostcode, postcode)
	}
	return loc, nil
}

// Len returns the number of known postcodes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

type fallback struct {
	next     Geocoder
	location models.Location
	log      logging.Logger
}

// WithFallback wraps g so that unknown postcodes resolve to loc instead of
// failing. Each miss is logged at warn level.
func WithFallback(g Geocoder, loc models.Location, log logging.Logger) Geocoder {
	if log == nil {
		log = logging.Noop()
	}
	return &fallback{next: g, location: loc, log: log}
}

func (f *fallback) Lookup(postcode string) (models.Location, error) {
	loc, err := f.next.Lookup(postcode)
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, ErrUnknownPostcode) {
		return models.Location{}, err
	}
	f.log.Warn(context.Background(), "unknown postcode, using fallback center",
		logging.String("postcode", postcode),
		logging.String("center", f.location.String()))
	return f.location, nil
}
