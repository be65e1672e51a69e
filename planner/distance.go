package planner

import "math"

// EarthRadiusMeters is the sphere radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// RadiusKm converts a search radius in meters to whole kilometers, never
// less than one.
func RadiusKm(radiusMeters float64) int {
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) {
		return 1
	}
	km := int(radiusMeters / 1000)
	if km < 1 {
		return 1
	}
	return km
}
