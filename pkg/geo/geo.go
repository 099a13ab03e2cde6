// Package geo provides geographic utility functions for the matching engine.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
// Travel time is estimated using a mode-specific average speed — used as
// the Haversine fallback estimator when no travel-time provider credential
// is configured. In production the travel-time cache prefers sampled
// provider durations over this estimate.
package geo

import (
	"math"
	"strconv"

	"github.com/shiva/geomatch/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// EarthRadiusM is the mean radius of Earth in meters.
	EarthRadiusM = 6_371_000.0

	// AverageSpeedKmph is the assumed average driving speed, used when no
	// mode-specific speed applies.
	AverageSpeedKmph = 30.0

	// DrivingSpeedKmph and TransitSpeedKmph are the mode-specific average
	// speeds used by the Haversine fallback estimator (§4.2/§4.3).
	DrivingSpeedKmph = 40.0
	TransitSpeedKmph = 24.0
)

// Point is a plain WGS-84 coordinate pair, decoupled from any domain
// entity.
type Point struct {
	Lat float64
	Lng float64
}

// FromGeocode converts a persisted Geocode into a Point. Returns the zero
// Point and false if g is nil.
func FromGeocode(g *model.Geocode) (Point, bool) {
	if g == nil {
		return Point{}, false
	}
	return Point{Lat: g.Lat, Lng: g.Lng}, true
}

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
//
// Complexity: O(1)
func HaversineKm(a, b Point) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b Point) float64 {
	return HaversineKm(a, b) * 1000.0
}

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(a, b Point) float64 {
	return HaversineKm(a, b) * 0.621371
}

// ─── Route Calculations ─────────────────────────────────────

// RouteDistanceKm returns the total distance of an ordered route in kilometers.
//
// Complexity: O(S) where S = number of stops.
func RouteDistanceKm(route []Point) float64 {
	total := 0.0
	for i := 0; i < len(route)-1; i++ {
		total += HaversineKm(route[i], route[i+1])
	}
	return total
}

// RouteTimeMinutes returns the estimated travel time for a route in minutes,
// assuming AverageSpeedKmph.
//
// Complexity: O(S)
func RouteTimeMinutes(route []Point) float64 {
	return (RouteDistanceKm(route) / AverageSpeedKmph) * 60.0
}

// EstimateTimeMinutes returns the estimated direct travel time between two
// points in minutes at AverageSpeedKmph.
//
// Complexity: O(1)
func EstimateTimeMinutes(a, b Point) float64 {
	return (HaversineKm(a, b) / AverageSpeedKmph) * 60.0
}

// EstimateSecondsByMode returns the Haversine fallback estimate (§4.2) in
// seconds, using the mode-specific average speed.
func EstimateSecondsByMode(a, b Point, mode model.TravelMode) float64 {
	speed := AverageSpeedKmph
	switch mode {
	case model.TravelDriving:
		speed = DrivingSpeedKmph
	case model.TravelTransit:
		speed = TransitSpeedKmph
	}
	return (HaversineKm(a, b) / speed) * 3600.0
}

// IsPlausibleContinentalUS reports whether a coordinate falls within the
// loose bounding box used to sanity-check manual pins and geocoder output
// (§6.1): lat ∈ [24,50], lng ∈ [-125,-66].
func IsPlausibleContinentalUS(p Point) bool {
	return p.Lat >= 24 && p.Lat <= 50 && p.Lng >= -125 && p.Lng <= -66
}

// ─── Route Manipulation ────────────────────────────────────

// InsertStop returns a new route with the given stop inserted at the specified
// index. The original route is NOT modified.
//
// Complexity: O(S)
func InsertStop(route []Point, index int, stop Point) []Point {
	newRoute := make([]Point, 0, len(route)+1)
	newRoute = append(newRoute, route[:index]...)
	newRoute = append(newRoute, stop)
	newRoute = append(newRoute, route[index:]...)
	return newRoute
}

// FindBestInsertionIndex finds the index in the route where inserting the
// new stop causes the LEAST increase in total route time.
// Returns (bestIndex, addedTimeMinutes).
//
// Complexity: O(S²) — but S is small in practice, so effectively constant.
func FindBestInsertionIndex(route []Point, stop Point) (int, float64) {
	if len(route) < 2 {
		return 0, 0
	}

	currentTime := RouteTimeMinutes(route)
	bestIdx := 0
	bestAdded := math.MaxFloat64

	for i := 0; i < len(route); i++ {
		candidate := InsertStop(route, i, stop)
		added := RouteTimeMinutes(candidate) - currentTime
		if added < bestAdded {
			bestAdded = added
			bestIdx = i
		}
	}

	return bestIdx, bestAdded
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}

// RoundedHash returns the ~100m-grid cache key component for a coordinate:
// 3-decimal-place rounded "lat,lng" (§3 TravelTimeCacheEntry invariant).
func RoundedHash(p Point) string {
	return formatRounded(p.Lat) + "," + formatRounded(p.Lng)
}

func formatRounded(f float64) string {
	rounded := math.Round(f*1000) / 1000
	return strconv.FormatFloat(rounded, 'f', 3, 64)
}
