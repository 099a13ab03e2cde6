package travel

import (
	"context"
	"fmt"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/pkg/geo"
)

// Sample is one provider query's result for a single configured sample
// time (§4.2).
type Sample struct {
	SampleTime     string
	DurationSec    float64
	DistanceMeters *float64
}

// Provider is the abstraction behind which a real routing-API client and
// the Haversine fallback both live (§9 polymorphism). Concrete HTTP
// routing integration is out of core scope per spec.md §1;
// NewHaversineProvider is the only constructor wired by default.
type Provider interface {
	Name() string
	Available() bool
	Sample(ctx context.Context, origin, dest geo.Point, mode model.TravelMode, sampleTime string) (Sample, error)
}

// haversineProvider is the always-available fallback: distance ÷
// mode-specific average speed, with no external call and no persistence
// of its own (the caller is responsible for not caching it, per §4.2).
type haversineProvider struct{}

// NewHaversineProvider returns the fallback provider used when no real
// routing provider credential is configured.
func NewHaversineProvider() Provider { return haversineProvider{} }

func (haversineProvider) Name() string    { return "haversine" }
func (haversineProvider) Available() bool { return true }

func (haversineProvider) Sample(_ context.Context, origin, dest geo.Point, mode model.TravelMode, sampleTime string) (Sample, error) {
	seconds := geo.EstimateSecondsByMode(origin, dest, mode)
	meters := geo.HaversineM(origin, dest)
	return Sample{SampleTime: sampleTime, DurationSec: seconds, DistanceMeters: &meters}, nil
}

// realProvider models an external routing API that returns a
// traffic-model-aware duration; wired but not reachable without a
// credential (§9: real variant + fallback variant, chosen at
// construction).
type realProvider struct {
	name string
}

// NewRealProvider constructs the real-provider variant; it is not
// wired to an actual transport client in this tree since no HTTP routing
// provider is among this repo's dependencies. It exists
// to satisfy the Provider abstraction's two-variant shape from §9.
func NewRealProvider(name string) Provider { return realProvider{name: name} }

func (p realProvider) Name() string    { return p.name }
func (p realProvider) Available() bool { return false }

func (p realProvider) Sample(ctx context.Context, origin, dest geo.Point, mode model.TravelMode, sampleTime string) (Sample, error) {
	return Sample{}, fmt.Errorf("travel: real provider %q not configured", p.name)
}
