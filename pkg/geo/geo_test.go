package geo

import (
	"math"
	"testing"

	"github.com/shiva/geomatch/internal/model"
)

func TestHaversineKm_SamePoint(t *testing.T) {
	loc := Point{Lat: 28.7041, Lng: 77.1025}
	got := HaversineKm(loc, loc)
	if got != 0 {
		t.Errorf("HaversineKm(same point) = %v, want 0", got)
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	connaught := Point{Lat: 28.6315, Lng: 77.2167}
	igi := Point{Lat: 28.5562, Lng: 77.0889}
	got := HaversineKm(connaught, igi)
	wantMin, wantMax := 14.0, 20.0
	if got < wantMin || got > wantMax {
		t.Errorf("HaversineKm(Connaught→IGI) = %.2f km, want between %.1f and %.1f", got, wantMin, wantMax)
	}
}

func TestEstimateTimeMinutes(t *testing.T) {
	a := Point{Lat: 28.7041, Lng: 77.1025}
	b := Point{Lat: 28.5562, Lng: 77.0889}
	got := EstimateTimeMinutes(a, b)
	if got < 25 || got > 40 {
		t.Errorf("EstimateTimeMinutes = %.1f, expected ~30-35 min", got)
	}
}

func TestEstimateSecondsByMode_TransitSlowerThanDriving(t *testing.T) {
	a := Point{Lat: 40.70, Lng: -73.99}
	b := Point{Lat: 40.50, Lng: -73.50}
	driving := EstimateSecondsByMode(a, b, model.TravelDriving)
	transit := EstimateSecondsByMode(a, b, model.TravelTransit)
	if transit <= driving {
		t.Errorf("expected transit (%v) slower than driving (%v)", transit, driving)
	}
}

func TestIsPlausibleContinentalUS(t *testing.T) {
	cases := []struct {
		p    Point
		want bool
	}{
		{Point{Lat: 40.70, Lng: -73.99}, true},  // NYC
		{Point{Lat: 61.2, Lng: -149.9}, false},  // Anchorage, AK
		{Point{Lat: 48.85, Lng: 2.35}, false},   // Paris
	}
	for _, c := range cases {
		if got := IsPlausibleContinentalUS(c.p); got != c.want {
			t.Errorf("IsPlausibleContinentalUS(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestRoundedHash(t *testing.T) {
	p := Point{Lat: 40.700123, Lng: -73.990987}
	got := RoundedHash(p)
	want := "40.700,-73.991"
	if got != want {
		t.Errorf("RoundedHash = %q, want %q", got, want)
	}
}

func TestRouteDistanceKm(t *testing.T) {
	route := []Point{
		{Lat: 28.7041, Lng: 77.1025},
		{Lat: 28.6500, Lng: 77.1000},
		{Lat: 28.5562, Lng: 77.0889},
	}
	got := RouteDistanceKm(route)
	if got <= 0 {
		t.Errorf("RouteDistanceKm = %v, want positive", got)
	}
}

func TestFindBestInsertionIndex(t *testing.T) {
	route := []Point{
		{Lat: 28.71, Lng: 77.10},
		{Lat: 28.65, Lng: 77.09},
		{Lat: 28.5562, Lng: 77.0889},
	}
	newStop := Point{Lat: 28.68, Lng: 77.095}

	idx, added := FindBestInsertionIndex(route, newStop)

	if idx < 0 || idx > len(route) {
		t.Errorf("FindBestInsertionIndex: idx = %d, want 0..%d", idx, len(route))
	}
	if added < 0 {
		t.Errorf("FindBestInsertionIndex: added = %v, want >= 0", added)
	}
}

func TestInsertStop(t *testing.T) {
	route := []Point{
		{Lat: 1, Lng: 1},
		{Lat: 2, Lng: 2},
	}
	stop := Point{Lat: 1.5, Lng: 1.5}
	got := InsertStop(route, 1, stop)
	if len(got) != 3 {
		t.Errorf("InsertStop: len = %d, want 3", len(got))
	}
	if got[1] != stop {
		t.Errorf("InsertStop: inserted at wrong position")
	}
}

func TestHaversineM(t *testing.T) {
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0.001, Lng: 0}
	km := HaversineKm(a, b)
	m := HaversineM(a, b)
	if math.Abs(m-km*1000) > 0.01 {
		t.Errorf("HaversineM = %v, want HaversineKm*1000 = %v", m, km*1000)
	}
}
