// Package geo provides spherical helpers for synthesizing and measuring trip paths.
package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	EarthRadiusMeters = 6371000.0
	MetersPerMile     = 1609.344
)

// Bounds is a lat/lon bounding box in degrees.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Chicago is the default simulation area.
var Chicago = Bounds{MinLat: 41.6, MaxLat: 42.1, MinLon: -87.9, MaxLon: -87.3}

// Contains reports whether the point lies inside the box (inclusive).
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Clamp moves a point onto the nearest edge of the box when it falls outside.
func (b Bounds) Clamp(lat, lon float64) (float64, float64) {
	return math.Max(b.MinLat, math.Min(b.MaxLat, lat)), math.Max(b.MinLon, math.Min(b.MaxLon, lon))
}

// Valid reports whether lat/lon are finite WGS84 degrees.
func Valid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// DistanceMiles returns the great-circle distance between two points in miles.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	return DistanceMeters(lat1, lon1, lat2, lon2) / MetersPerMile
}

// Bearing returns the initial bearing from point 1 to point 2 in degrees [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)

	lonDiff := p2.Lng.Radians() - p1.Lng.Radians()
	y := math.Sin(lonDiff) * math.Cos(p2.Lat.Radians())
	x := math.Cos(p1.Lat.Radians())*math.Sin(p2.Lat.Radians()) -
		math.Sin(p1.Lat.Radians())*math.Cos(p2.Lat.Radians())*math.Cos(lonDiff)

	deg := s1.Angle(math.Atan2(y, x)).Degrees()
	return math.Mod(deg+360, 360)
}

// Destination returns the point reached by travelling meters from lat/lon along bearing (degrees).
func Destination(lat, lon, bearing, meters float64) (float64, float64) {
	p := s2.LatLngFromDegrees(lat, lon)
	brng := bearing * math.Pi / 180
	ang := meters / EarthRadiusMeters

	latRad := p.Lat.Radians()
	lonRad := p.Lng.Radians()

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(ang) +
		math.Cos(latRad)*math.Sin(ang)*math.Cos(brng))
	lon2 := lonRad + math.Atan2(
		math.Sin(brng)*math.Sin(ang)*math.Cos(latRad),
		math.Cos(ang)-math.Sin(latRad)*math.Sin(lat2))

	out := s2.LatLng{Lat: s1.Angle(lat2), Lng: s1.Angle(lon2)}.Normalized()
	return out.Lat.Degrees(), out.Lng.Degrees()
}

// Interpolate returns the point at fraction t along the great circle from point 1 to point 2.
func Interpolate(lat1, lon1, lat2, lon2, t float64) (float64, float64) {
	a := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lon1))
	b := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lon2))
	ll := s2.LatLngFromPoint(s2.Interpolate(t, a, b))
	return ll.Lat.Degrees(), ll.Lng.Degrees()
}

// CellKey quantizes a point to a grid of the given precision in degrees, for cache and lookup keys.
func CellKey(lat, lon, precision float64) (int64, int64) {
	return int64(math.Round(lat / precision)), int64(math.Round(lon / precision))
}
