// Package geo implements venue blackout checks: great-circle distance
// between a viewer and a venue, and the block/allow decision against the
// event radius.
package geo

import (
	"errors"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// ErrLocationUnavailable is returned when the viewer location could not be
// obtained (permission denied, timeout, device error) or is not a valid
// coordinate.  Callers must never treat it as "not blocked".
var ErrLocationUnavailable = errors.New("location unavailable")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a finite coordinate within range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Result is the outcome of a blackout check.
type Result struct {
	Blocked    bool    `json:"blocked"`
	DistanceKm float64 `json:"distance_km"`
}

// Distance returns the haversine distance in kilometres between a and b,
// unrounded.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// clamp rounding noise so antipodal points do not produce NaN
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Round2 rounds km to two decimal places.
func Round2(km float64) float64 {
	return math.Round(km*100) / 100
}

// Verify decides whether a viewer at (viewerLat, viewerLng) is inside the
// blackout radius of the venue.  The decision uses the exact distance, so
// anything strictly inside the radius is blocked and a viewer exactly on it
// is allowed.  The reported distance is rounded to two decimals and may
// therefore equal the radius for a blocked viewer.  A non-positive radius
// falls back to the 50 km default.
func Verify(venueLat, venueLng, radiusKm, viewerLat, viewerLng float64) (Result, error) {
	venue := Point{Lat: venueLat, Lng: venueLng}
	viewer := Point{Lat: viewerLat, Lng: viewerLng}
	if !viewer.Valid() {
		return Result{}, ErrLocationUnavailable
	}
	if !venue.Valid() {
		return Result{}, errors.New("invalid venue coordinate")
	}
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	d := Distance(venue, viewer)
	return Result{Blocked: d < radiusKm, DistanceKm: Round2(d)}, nil
}

// DefaultRadiusKm mirrors model.DefaultGeoRadiusKm for callers that only
// deal in raw coordinates.
const DefaultRadiusKm = 50.0
