// Package geo holds the geodesic primitives shared by the outage detector and
// its spatial indexes: surface distances on the WGS-84 ellipsoid and on a
// sphere, coordinate validation, and conservative search boxes around a
// center point.
package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/1F47E/geo-outage-rtree/pkg/models"
)

const (
	// EarthRadiusMeters is the IUGG mean Earth radius used by Haversine.
	EarthRadiusMeters = 6371008.8

	// WGS-84 ellipsoid.
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = wgs84A * (1 - wgs84F)

	vincentyMaxIterations = 200
	vincentyTolerance     = 1e-12
)

// Metric returns the surface distance in meters between two locations.
type Metric func(a, b models.Location) float64

// Haversine calculates the great-circle distance between two points in meters
// on a sphere of radius EarthRadiusMeters.
func Haversine(a, b models.Location) float64 {
	lat1Rad := a.Lat * math.Pi / 180.0
	lon1Rad := a.Lon * math.Pi / 180.0
	lat2Rad := b.Lat * math.Pi / 180.0
	lon2Rad := b.Lon * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Vincenty calculates the geodesic distance in meters between two points on
// the WGS-84 ellipsoid using Vincenty's inverse formula. Nearly antipodal
// pairs where the iteration does not converge fall back to Haversine.
func Vincenty(a, b models.Location) float64 {
	L := normalizeRadians((b.Lon - a.Lon) * math.Pi / 180.0)
	U1 := math.Atan((1 - wgs84F) * math.Tan(a.Lat*math.Pi/180.0))
	U2 := math.Atan((1 - wgs84F) * math.Tan(b.Lat*math.Pi/180.0))
	sinU1, cosU1 := math.Sincos(U1)
	sinU2, cosU2 := math.Sincos(U2)

	lambda := L
	var sinSigma, cosSigma, sigma, cos2Alpha, cos2SigmaM float64
	converged := false
	for i := 0; i < vincentyMaxIterations; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)
		t1 := cosU2 * sinLambda
		t2 := cosU1*sinU2 - sinU1*cosU2*cosLambda
		sinSigma = math.Sqrt(t1*t1 + t2*t2)
		if sinSigma == 0 {
			return 0 // coincident points
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cos2Alpha = 1 - sinAlpha*sinAlpha
		if cos2Alpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cos2Alpha
		} else {
			cos2SigmaM = 0 // equatorial line
		}
		C := wgs84F / 16 * cos2Alpha * (4 + wgs84F*(4-3*cos2Alpha))
		prev := lambda
		lambda = L + (1-C)*wgs84F*sinAlpha*
			(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < vincentyTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return Haversine(a, b)
	}

	u2 := cos2Alpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	A := 1 + u2/16384*(4096+u2*(-768+u2*(320-175*u2)))
	B := u2 / 1024 * (256 + u2*(-128+u2*(74-47*u2)))
	deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return wgs84B * A * (sigma - deltaSigma)
}

// ParseMetric maps a configuration name to a Metric. The empty string selects
// the ellipsoidal metric.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "vincenty", "wgs84", "ellipsoid":
		return Vincenty, nil
	case "haversine", "sphere":
		return Haversine, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q", name)
	}
}

func normalizeRadians(x float64) float64 {
	for x > math.Pi {
		x -= 2 * math.Pi
	}
	for x < -math.Pi {
		x += 2 * math.Pi
	}
	return x
}
