package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

// ErrInvalidLocation is returned for NaN, infinite or out-of-range coordinates.
var ErrInvalidLocation = errors.New("invalid location")

// minRadiusOfCurvature is the WGS-84 meridional radius of curvature at the
// equator, a(1-e^2), the smallest radius of curvature anywhere on the
// ellipsoid. Both metrics in this package are bounded below by the
// great-circle distance on a sphere of this radius, so boxes derived from it
// never exclude a point within range.
const minRadiusOfCurvature = wgs84A * (1 - wgs84F) * (1 - wgs84F)

const (
	boundsInflation = 1.0001
	boundsPadDeg    = 1e-9
)

// ValidateLocation checks that the coordinates are finite and within
// [-90, 90] latitude and [-180, 180] longitude.
func ValidateLocation(loc models.Location) error {
	if math.IsNaN(loc.Lat) || math.IsInf(loc.Lat, 0) || loc.Lat < -90 || loc.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidLocation, loc.Lat)
	}
	if math.IsNaN(loc.Lon) || math.IsInf(loc.Lon, 0) || loc.Lon < -180 || loc.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidLocation, loc.Lon)
	}
	return nil
}

// RadiusBounds returns one or two lat/lon boxes that together contain every
// location within radiusMeters of center. Two boxes are returned when the
// search area crosses the antimeridian; a single full-longitude band is
// returned when it reaches a pole.
//
// The boxes follow the bounding-circle construction of J. P. Matuschek on a
// sphere of the minimum radius of curvature, inflated slightly to absorb
// rounding. They are a prefilter only: callers must still apply the exact
// distance check.
func RadiusBounds(center models.Location, radiusMeters float64) []models.BoundingBox {
	angular := math.Min(radiusMeters/minRadiusOfCurvature*boundsInflation, math.Pi)
	lat := center.Lat * math.Pi / 180.0

	latMin := lat - angular
	latMax := lat + angular
	if latMin <= -math.Pi/2 || latMax >= math.Pi/2 {
		return []models.BoundingBox{{
			BottomLeft: models.Location{Lat: math.Max(toDeg(latMin)-boundsPadDeg, -90), Lon: -180},
			TopRight:   models.Location{Lat: math.Min(toDeg(latMax)+boundsPadDeg, 90), Lon: 180},
		}}
	}

	deltaLon := toDeg(math.Asin(math.Sin(angular)/math.Cos(lat))) + boundsPadDeg
	minLat := toDeg(latMin) - boundsPadDeg
	maxLat := toDeg(latMax) + boundsPadDeg
	lonMin := center.Lon - deltaLon
	lonMax := center.Lon + deltaLon

	box := func(lo, hi float64) models.BoundingBox {
		return models.BoundingBox{
			BottomLeft: models.Location{Lat: minLat, Lon: lo},
			TopRight:   models.Location{Lat: maxLat, Lon: hi},
		}
	}

	switch {
	case lonMin < -180 && lonMax > 180:
		return []models.BoundingBox{box(-180, 180)}
	case lonMin < -180:
		return []models.BoundingBox{box(lonMin+360, 180), box(-180, lonMax)}
	case lonMax > 180:
		return []models.BoundingBox{box(lonMin, 180), box(-180, lonMax-360)}
	default:
		return []models.BoundingBox{box(lonMin, lonMax)}
	}
}

func toDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
