// Package geo provides great-circle distance and arrival estimation for
// session tracking. Everything here is pure and deterministic.
package geo

import (
	"math"
	"time"
)

const (
	// earthRadiusMeters is the spherical Earth radius used by the haversine formula.
	earthRadiusMeters = 6371000.0

	// mphToMetersPerSecond converts mph-equivalent speeds to m/s.
	mphToMetersPerSecond = 0.44704

	// minSpeedMph is the threshold below which a fix is treated as stationary
	// or crawling; floorSpeedMph is substituted so ETAs stay bounded.
	minSpeedMph   = 5.0
	floorSpeedMph = 20.0
)

// Distance returns the great-circle distance in meters between two
// coordinates. Symmetric in its arguments.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// EstimateArrival returns the projected arrival time for the given distance
// and current speed (mph). Speeds below the minimum are replaced with the
// floor speed so a stationary bus never yields a near-infinite ETA. The
// result is never earlier than now.
func EstimateArrival(now time.Time, distanceMeters, speedMph float64) time.Time {
	if speedMph < minSpeedMph {
		speedMph = floorSpeedMph
	}
	metersPerSecond := speedMph * mphToMetersPerSecond
	seconds := distanceMeters / metersPerSecond
	if seconds < 0 {
		seconds = 0
	}
	return now.Add(time.Duration(seconds * float64(time.Second)))
}
