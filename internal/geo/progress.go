package geo

import "math"

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance between two points in meters.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// NearestWaypoint finds the closest waypoint to the current position and
// reports whether it is within reachedRadius meters. Returns index -1 for an
// empty waypoint list.
func NearestWaypoint(lat, lng float64, waypoints []LatLng, reachedRadius float64) (int, float64, bool) {
	best := -1
	bestDist := math.MaxFloat64
	for i, w := range waypoints {
		d := Haversine(lat, lng, w.Lat, w.Lng)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best == -1 {
		return -1, 0, false
	}
	return best, bestDist, bestDist <= reachedRadius
}

// RouteProgress maps the reached waypoint index to a 0..100 percentage over
// the full waypoint sequence. A single-waypoint route is complete once that
// waypoint is reached.
func RouteProgress(reachedIndex, waypointCount int) float64 {
	if waypointCount <= 0 || reachedIndex < 0 {
		return 0
	}
	if waypointCount == 1 {
		return 100
	}
	p := float64(reachedIndex) / float64(waypointCount-1) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
