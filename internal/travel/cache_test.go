package travel

import (
	"context"
	"testing"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/pkg/geo"
)

func TestAggregate_PessimisticUsesMedianWhenHigherThanMax(t *testing.T) {
	samples := []Sample{
		{SampleTime: "14:30", DurationSec: 600},
		{SampleTime: "16:30", DurationSec: 610},
		{SampleTime: "18:30", DurationSec: 590},
	}
	avg, median, pessimistic, _ := aggregate(samples)
	if avg != 600 {
		t.Errorf("avg = %v, want 600", avg)
	}
	if median != 600 {
		t.Errorf("median = %v, want 600", median)
	}
	wantPessimistic := 660.0 // round(600*1.1) > max(610)
	if pessimistic != wantPessimistic {
		t.Errorf("pessimistic = %v, want %v", pessimistic, wantPessimistic)
	}
}

func TestAggregate_PessimisticUsesMaxWhenHigherThanMedianFactor(t *testing.T) {
	samples := []Sample{
		{SampleTime: "14:30", DurationSec: 500},
		{SampleTime: "16:30", DurationSec: 1200},
	}
	_, median, pessimistic, _ := aggregate(samples)
	if median != 850 {
		t.Errorf("median = %v, want 850", median)
	}
	if pessimistic != 1200 {
		t.Errorf("pessimistic = %v, want 1200 (max dominates)", pessimistic)
	}
}

func TestAggregate_DistanceMeanIgnoresNilSamples(t *testing.T) {
	a := 1000.0
	b := 3000.0
	samples := []Sample{
		{SampleTime: "14:30", DurationSec: 100, DistanceMeters: &a},
		{SampleTime: "16:30", DurationSec: 100, DistanceMeters: &b},
		{SampleTime: "18:30", DurationSec: 100, DistanceMeters: nil},
	}
	_, _, _, dist := aggregate(samples)
	if dist == nil || *dist != 2000 {
		t.Errorf("distance = %v, want 2000", dist)
	}
}

func TestHaversineProvider_AlwaysAvailable(t *testing.T) {
	p := NewHaversineProvider()
	if !p.Available() {
		t.Fatal("haversine provider should always be available")
	}
	origin := geo.Point{Lat: 40.7128, Lng: -74.0060}
	dest := geo.Point{Lat: 40.7306, Lng: -73.9352}
	s, err := p.Sample(context.Background(), origin, dest, model.TravelDriving, "14:30")
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if s.DurationSec <= 0 {
		t.Errorf("DurationSec = %v, want > 0", s.DurationSec)
	}
	if s.DistanceMeters == nil || *s.DistanceMeters <= 0 {
		t.Errorf("DistanceMeters = %v, want > 0", s.DistanceMeters)
	}
}

func TestRealProvider_UnavailableByDefault(t *testing.T) {
	p := NewRealProvider("acme-routes")
	if p.Available() {
		t.Fatal("unconfigured real provider should report Available() == false")
	}
	if _, err := p.Sample(context.Background(), geo.Point{}, geo.Point{}, model.TravelDriving, "14:30"); err == nil {
		t.Fatal("expected error from unconfigured real provider")
	}
}

func TestRedisKey_StableAcrossCalls(t *testing.T) {
	k1 := redisKey("40.700,-73.990", "40.710,-73.980", model.EntityClient, model.EntityTechnician, model.TravelDriving, "weekday_2to8")
	k2 := redisKey("40.700,-73.990", "40.710,-73.980", model.EntityClient, model.EntityTechnician, model.TravelDriving, "weekday_2to8")
	if k1 != k2 {
		t.Errorf("redisKey not stable: %q != %q", k1, k2)
	}
}
