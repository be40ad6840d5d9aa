// Package geo provides the minimal geographic value types shared across
// the scene and tile packages.
package geo

import "math"

// Location is a point in WGS84 decimal degrees.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the location falls within the WGS84 ranges.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// DistanceMeters returns the great-circle distance between two locations
// using the haversine formula.
func (l Location) DistanceMeters(other Location) float64 {
	const earthRadiusMeters = 6371000.0

	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
