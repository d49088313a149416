// Package geo ranks emergency equipment (AED) records by great-circle distance.
package geo

import "math"

// EarthRadius in meters.
const EarthRadius = 6371e3

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the haversine distance in meters between two points given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	a := sinLat*sinLat + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*sinLon*sinLon
	a = math.Min(1, math.Max(0, a))
	return 2 * EarthRadius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
