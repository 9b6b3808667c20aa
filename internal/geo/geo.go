// Package geo holds the distance and privacy-fuzzing primitives used by the
// proximity matcher. All inter-user math runs on fuzzed coordinates.
package geo

import (
	"math"
	"math/rand"
)

const earthRadiusKm = 6371.0

// DistanceKm computes the great-circle distance between two coordinates
// using the haversine formula. The inverse-cosine argument is clamped to
// [-1, 1]: floating-point drift for near-identical points can push it just
// outside the domain of Acos.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlng := (lng2 - lng1) * math.Pi / 180

	arg := math.Sin(rlat1)*math.Sin(rlat2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Cos(dlng)
	arg = math.Max(-1, math.Min(1, arg))

	return earthRadiusKm * math.Acos(arg)
}

// FuzzKm is the radius within which an exact coordinate is displaced before
// it becomes public-facing.
const FuzzKm = 0.3

// Fuzz displaces a coordinate by a random offset of up to FuzzKm in each
// axis. The result is stored once at session start so repeated reads cannot
// be averaged back to the exact position.
func Fuzz(lat, lng float64) (float64, float64) {
	// ~111 km per degree of latitude; longitude shrinks with cos(lat).
	dLat := (rand.Float64()*2 - 1) * FuzzKm / 111.0
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	dLng := (rand.Float64()*2 - 1) * FuzzKm / (111.0 * cos)
	return lat + dLat, lng + dLng
}
