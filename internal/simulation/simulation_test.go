package simulation

import (
	"errors"
	"testing"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/pkg/geo"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name   string
		in     error
		reason Reason
		passthrough bool
	}{
		{"not proposed", repository.ErrProposalNotProposed, ReasonProposalNotProposed, false},
		{"already paired", repository.ErrAlreadyActivePairing, ReasonClientAlreadyPaired, false},
		{"technician not locked", repository.ErrTechnicianNotLocked, ReasonTechnicianNotLocked, false},
		{"unrelated error", errors.New("boom"), "", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classifyError(c.in)
			var ce *ConflictError
			if errors.As(got, &ce) {
				if c.passthrough {
					t.Fatalf("classifyError(%v) = %v, want passthrough", c.in, got)
				}
				if ce.Reason != c.reason {
					t.Errorf("reason = %q, want %q", ce.Reason, c.reason)
				}
				if !errors.Is(ce, c.in) {
					t.Errorf("ConflictError does not unwrap to original error")
				}
				return
			}
			if !c.passthrough {
				t.Fatalf("classifyError(%v) = %v, want *ConflictError", c.in, got)
			}
			if got != c.in {
				t.Errorf("classifyError passthrough = %v, want %v", got, c.in)
			}
		})
	}
}

func TestTravelModeFor(t *testing.T) {
	if got := travelModeFor(model.ModeTransit); got != model.TravelTransit {
		t.Errorf("travelModeFor(transit) = %v, want TravelTransit", got)
	}
	if got := travelModeFor(model.ModeCar); got != model.TravelDriving {
		t.Errorf("travelModeFor(car) = %v, want TravelDriving", got)
	}
	if got := travelModeFor(model.ModeBoth); got != model.TravelDriving {
		t.Errorf("travelModeFor(both) = %v, want TravelDriving", got)
	}
}

func techAt(id int64, lat, lng float64, mode model.TransportMode) *model.Technician {
	return &model.Technician{
		ID:             id,
		TransportMode:  mode,
		Geocode:        &model.Geocode{Lat: lat, Lng: lng, Confidence: 1.0},
	}
}

func TestBestTechnicianFor_PicksNearestUnderBudget(t *testing.T) {
	// Roughly downtown Chicago client; one technician close, one far enough
	// that its estimated travel time exceeds MaxTravelMinutes.
	client := geo.Point{Lat: 41.8781, Lng: -87.6298}
	near := techAt(1, 41.8800, -87.6300, model.ModeCar)
	far := techAt(2, 42.5000, -88.5000, model.ModeCar) // ~60+ miles away

	best, minutes, distance, found := bestTechnicianFor(client, []*model.Technician{near, far})
	if !found {
		t.Fatal("expected a technician to be found")
	}
	if best.ID != near.ID {
		t.Errorf("best = %d, want %d (nearest)", best.ID, near.ID)
	}
	if minutes <= 0 || minutes > MaxTravelMinutes {
		t.Errorf("minutes = %v, want in (0, %v]", minutes, MaxTravelMinutes)
	}
	if distance <= 0 {
		t.Errorf("distance = %v, want positive", distance)
	}
}

func TestBestTechnicianFor_NoneWithinBudget(t *testing.T) {
	client := geo.Point{Lat: 41.8781, Lng: -87.6298}
	far := techAt(1, 45.0, -93.0, model.ModeCar) // Minneapolis, far outside budget

	_, _, _, found := bestTechnicianFor(client, []*model.Technician{far})
	if found {
		t.Fatal("expected no technician within MaxTravelMinutes")
	}
}

func TestBestTechnicianFor_SkipsTechnicianWithoutCoords(t *testing.T) {
	client := geo.Point{Lat: 41.8781, Lng: -87.6298}
	noCoords := &model.Technician{ID: 1, TransportMode: model.ModeCar}
	near := techAt(2, 41.8800, -87.6300, model.ModeCar)

	best, _, _, found := bestTechnicianFor(client, []*model.Technician{noCoords, near})
	if !found || best.ID != near.ID {
		t.Fatalf("expected to fall through to the geocoded technician, got %+v found=%v", best, found)
	}
}
