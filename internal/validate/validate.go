// Package validate implements the Validator (C6): a post-hoc plausibility
// check over matcher output, flagging needs-review via structured reason
// codes rather than substring matching (spec.md §9 ambiguous-source note
// #2). Grounded on the teacher's inline validation style in
// internal/repository/riderequest_repository.go (bound checks inline in
// CreateRideRequest), pulled out into a dedicated validator since §4.4
// describes a distinct component.
package validate

import (
	"strings"

	"github.com/shiva/geomatch/internal/model"
)

// Reason is a structured code for why a match was flagged, distinct from
// the free-text explain strings elsewhere (§9 note #2: never substring
// match on "missing coordinates").
type Reason string

const (
	ReasonGeocodeSuspect    Reason = "geocode_suspect_short_distance_long_travel"
	ReasonRouteSuspect      Reason = "route_suspect_long_distance_short_travel"
	ReasonBothApproximate   Reason = "both_sides_approximate_precision"
	ReasonBothLowConfidence Reason = "both_sides_low_confidence"
	ReasonZipAreaMismatch   Reason = "zip_only_area_mismatch"

	WarnOneSideApproximate   Reason = "one_side_approximate_precision"
	WarnOneSideLowConfidence Reason = "one_side_low_confidence"
	WarnLowAverageSpeed      Reason = "low_average_speed"
	WarnZipAreaMatch         Reason = "zip_only_area_match"
)

// areaAliasGroups is the closed set of area-equivalence alias groups used
// to decide whether a client-side area label and a technician-side city
// label refer to the same place under zip_only geocoding (§4.4).
var areaAliasGroups = [][]string{
	{"manhattan", "new york", "nyc", "new york city"},
	{"brooklyn", "kings county"},
	{"queens", "queens county"},
	{"the bronx", "bronx"},
	{"staten island", "richmond county"},
	{"downtown", "downtown core", "city center"},
}

func areasEquivalent(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	for _, group := range areaAliasGroups {
		inGroup := func(x string) bool {
			for _, g := range group {
				if g == x {
					return true
				}
			}
			return false
		}
		if inGroup(a) && inGroup(b) {
			return true
		}
	}
	return false
}

// Input bundles everything the validator needs for one assignment.
type Input struct {
	ClientGeocode     *model.Geocode
	TechnicianGeocode *model.Geocode
	ClientAreaLabel   string // e.g. the client's parsed city/borough
	TechAreaLabel     string
	DistanceMiles     float64
	TravelTimeMinutes float64
	Method            model.NormalizationMethod // method used for the geocode driving this match
}

// Result is the validator's annotation.
type Result struct {
	NeedsReview  bool
	Reasons      []Reason
	Warnings     []Reason
	QualityScore float64
}

// Validate implements §4.4's rule set. Missing coordinates alone never
// trigger needs-review here — by construction, Input is only built when a
// travel time was already computed, so both geocodes are non-nil at call
// sites that matter (§4.4's explicit carve-out).
func Validate(in Input) Result {
	var res Result

	cg, tg := in.ClientGeocode, in.TechnicianGeocode

	if in.DistanceMiles < 0.2 && in.TravelTimeMinutes > 20 {
		res.Reasons = append(res.Reasons, ReasonGeocodeSuspect)
	}
	if in.DistanceMiles > 60 && in.TravelTimeMinutes < 45 {
		res.Reasons = append(res.Reasons, ReasonRouteSuspect)
	}

	clientApprox := cg != nil && cg.Precision == model.PrecisionApproximate
	techApprox := tg != nil && tg.Precision == model.PrecisionApproximate
	switch {
	case clientApprox && techApprox:
		res.Reasons = append(res.Reasons, ReasonBothApproximate)
	case clientApprox || techApprox:
		res.Warnings = append(res.Warnings, WarnOneSideApproximate)
	}

	clientLow := cg != nil && cg.Confidence < 0.5
	techLow := tg != nil && tg.Confidence < 0.5
	switch {
	case clientLow && techLow:
		res.Reasons = append(res.Reasons, ReasonBothLowConfidence)
	case clientLow || techLow:
		res.Warnings = append(res.Warnings, WarnOneSideLowConfidence)
	}

	if in.TravelTimeMinutes > 0 {
		avgSpeedMph := in.DistanceMiles / (in.TravelTimeMinutes / 60.0)
		if avgSpeedMph < 5 {
			res.Warnings = append(res.Warnings, WarnLowAverageSpeed)
		}
	}

	if in.Method == model.MethodZipOnly {
		if areasEquivalent(in.ClientAreaLabel, in.TechAreaLabel) {
			res.Warnings = append(res.Warnings, WarnZipAreaMatch)
		} else if in.ClientAreaLabel != "" && in.TechAreaLabel != "" {
			res.Reasons = append(res.Reasons, ReasonZipAreaMismatch)
		}
	}

	res.NeedsReview = len(res.Reasons) > 0
	res.QualityScore = qualityScore(cg, tg)
	return res
}

// qualityScore implements §4.4's formula: average of two confidences,
// ×0.7 per APPROXIMATE side, ×0.8 per zip_only side, ×1.2 (capped at 1.0)
// per manual_pin side.
func qualityScore(cg, tg *model.Geocode) float64 {
	var sum float64
	var n int
	for _, g := range []*model.Geocode{cg, tg} {
		if g != nil {
			sum += g.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	score := sum / float64(n)

	for _, g := range []*model.Geocode{cg, tg} {
		if g == nil {
			continue
		}
		if g.Precision == model.PrecisionApproximate {
			score *= 0.7
		}
		if g.Source == model.SourceZipOnly {
			score *= 0.8
		}
		if g.Source == model.SourceManualPin {
			score *= 1.2
			if score > 1.0 {
				score = 1.0
			}
		}
	}
	return score
}
