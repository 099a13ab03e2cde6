package normalize

import (
	"testing"

	"github.com/shiva/geomatch/internal/model"
)

func TestNormalize_Empty(t *testing.T) {
	na := Normalize("   ")
	if na != (model.NormalizedAddress{}) {
		t.Errorf("Normalize(whitespace) = %+v, want zero value", na)
	}
}

func TestNormalize_FullAddress(t *testing.T) {
	na := Normalize("123 Main St, Springfield, IL 62701")
	if na.Method != model.MethodFullAddress {
		t.Errorf("Method = %v, want full_address", na.Method)
	}
	if na.Zip != "62701" {
		t.Errorf("Zip = %q, want 62701", na.Zip)
	}
	if na.State != "IL" {
		t.Errorf("State = %q, want IL", na.State)
	}
	if na.City != "Springfield" {
		t.Errorf("City = %q, want Springfield", na.City)
	}
	if na.QualityScore != 1.0 {
		t.Errorf("QualityScore = %v, want 1.0", na.QualityScore)
	}
}

func TestNormalize_ZipOnly(t *testing.T) {
	na := Normalize("62701")
	if na.Method != model.MethodZipOnly {
		t.Errorf("Method = %v, want zip_only", na.Method)
	}
}

func TestNormalize_CityState(t *testing.T) {
	na := Normalize("Springfield, Illinois")
	if na.Method != model.MethodCityState {
		t.Errorf("Method = %v, want city_state, got city=%q state=%q", na.Method, na.City, na.State)
	}
}

func TestNormalize_CanonicalSuffixedWithUSA(t *testing.T) {
	na := Normalize("123 Main St, Springfield, IL 62701")
	if got := na.CanonicalString[len(na.CanonicalString)-5:]; got != ", USA" {
		t.Errorf("CanonicalString suffix = %q, want \", USA\"", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"123 Main St, Springfield, IL 62701",
		"62701",
		"Springfield, IL",
	}
	for _, in := range inputs {
		first := Normalize(in)
		second := Normalize(first.CanonicalString)
		if first.Method != second.Method {
			t.Errorf("idempotence broken for %q: method %v -> %v", in, first.Method, second.Method)
		}
		if first.CanonicalString != second.CanonicalString {
			t.Errorf("idempotence broken for %q: canonical %q -> %q", in, first.CanonicalString, second.CanonicalString)
		}
	}
}
