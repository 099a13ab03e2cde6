package geocode

import (
	"testing"

	"github.com/shiva/geomatch/internal/model"
)

func TestConfidenceFor_Rooftop(t *testing.T) {
	got := confidenceFor(model.PrecisionRooftop, 1.0, model.MethodFullAddress)
	if got != 1.0 {
		t.Errorf("confidenceFor(ROOFTOP, 1.0) = %v, want 1.0", got)
	}
}

func TestConfidenceFor_RooftopLowQualityPenalized(t *testing.T) {
	got := confidenceFor(model.PrecisionRooftop, 0.3, model.MethodFullAddress)
	want := 0.8
	if got != want {
		t.Errorf("confidenceFor(ROOFTOP, 0.3) = %v, want %v", got, want)
	}
}

func TestConfidenceFor_ZipOnlyGeometricCenterNormalized(t *testing.T) {
	got := confidenceFor(model.PrecisionGeometricCenter, 0.9, model.MethodZipOnly)
	if got != 0.6 {
		t.Errorf("confidenceFor(GEOMETRIC_CENTER, zip_only) = %v, want 0.6", got)
	}
}

func TestNeedsVerification(t *testing.T) {
	cases := []struct {
		precision  model.GeocodePrecision
		confidence float64
		method     model.NormalizationMethod
		want       bool
	}{
		{model.PrecisionRooftop, 0.9, model.MethodFullAddress, false},
		{model.PrecisionApproximate, 0.9, model.MethodFullAddress, true},
		{model.PrecisionRooftop, 0.4, model.MethodFullAddress, true},
		{model.PrecisionRooftop, 0.9, model.MethodZipOnly, true},
	}
	for _, c := range cases {
		if got := needsVerification(c.precision, c.confidence, c.method); got != c.want {
			t.Errorf("needsVerification(%v,%v,%v) = %v, want %v", c.precision, c.confidence, c.method, got, c.want)
		}
	}
}

func TestLocationTypeToPrecision(t *testing.T) {
	cases := map[string]model.GeocodePrecision{
		"ROOFTOP":             model.PrecisionRooftop,
		"RANGE_INTERPOLATED":  model.PrecisionRangeInterpolated,
		"GEOMETRIC_CENTER":    model.PrecisionGeometricCenter,
		"APPROXIMATE":         model.PrecisionApproximate,
		"SOMETHING_UNKNOWN":   model.PrecisionApproximate,
	}
	for in, want := range cases {
		if got := locationTypeToPrecision(in); got != want {
			t.Errorf("locationTypeToPrecision(%q) = %v, want %v", in, got, want)
		}
	}
}
