// Package normalize implements the Address Normalizer (C1): free-form US
// address text → structured components + canonical geocoding string +
// quality score. Grounded on the teacher's general "best-effort parse,
// never fail on malformed input" service style, and on the lowercase/
// trim/join canonicalization idiom used for geocode cache keys in
// sells-group-research-cli/pkg/geocode/cache.go.
package normalize

import (
	"regexp"
	"strings"

	"github.com/shiva/geomatch/internal/model"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	zipRe        = regexp.MustCompile(`\b(\d{5})(-\d{4})?\b`)
)

var usStateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true,
	"DE": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true, "IN": true,
	"IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true, "MA": true,
	"MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true, "NV": true,
	"NH": true, "NJ": true, "NM": true, "NY": true, "NC": true, "ND": true, "OH": true,
	"OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true, "WI": true,
	"WY": true, "DC": true,
	// Territories.
	"PR": true, "GU": true, "VI": true, "AS": true, "MP": true,
}

var stateNameToCode = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI",
	"wyoming": "WY", "district of columbia": "DC",
}

var streetTypeTokens = map[string]bool{
	"st": true, "street": true, "ave": true, "avenue": true, "blvd": true, "boulevard": true,
	"rd": true, "road": true, "dr": true, "drive": true, "ln": true, "lane": true,
	"ct": true, "court": true, "pl": true, "place": true, "way": true, "ter": true,
	"terrace": true, "cir": true, "circle": true, "pkwy": true, "parkway": true, "hwy": true,
	"highway": true,
}

// Normalize parses free-form address text into a NormalizedAddress.
// Returns the zero value for empty/whitespace-only input; any other input
// always yields a best-effort result (§4.1).
func Normalize(raw string) model.NormalizedAddress {
	cleaned := clean(raw)
	if cleaned == "" {
		return model.NormalizedAddress{}
	}

	na := model.NormalizedAddress{Original: raw}

	na.Zip = extractZip(cleaned)
	na.HasZip = na.Zip != ""

	na.State = extractState(cleaned)
	na.HasState = na.State != ""

	parts := splitOnComma(cleaned)
	na.City = extractCity(parts, na.State)
	na.HasCity = na.City != ""

	na.HasStreetNumber, na.HasStreetName, na.Street = extractStreet(parts)

	na.Method = strongestMethod(na)
	na.CanonicalString = buildCanonical(na, cleaned)
	na.QualityScore = qualityScore(na)

	return na
}

func clean(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "’", "'")
	s = strings.ReplaceAll(s, "“", `"`)
	s = strings.ReplaceAll(s, "”", `"`)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = regexp.MustCompile(`\s*,\s*`).ReplaceAllString(s, ", ")
	return strings.TrimSpace(s)
}

func extractZip(s string) string {
	m := zipRe.FindString(s)
	return m
}

func extractState(s string) string {
	upper := strings.ToUpper(s)
	tokens := regexp.MustCompile(`[,\s]+`).Split(upper, -1)
	for _, t := range tokens {
		t = strings.Trim(t, ".")
		if len(t) == 2 && usStateCodes[t] {
			return t
		}
	}
	lower := strings.ToLower(s)
	for name, code := range stateNameToCode {
		if strings.Contains(lower, name) {
			return code
		}
	}
	return ""
}

func splitOnComma(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractCity scans comma-separated parts from right, skipping the state
// and zip-bearing segment, skipping street-type tokens, per §4.1.
func extractCity(parts []string, state string) string {
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		lower := strings.ToLower(p)
		if lower == "usa" || lower == "us" {
			continue
		}
		if zipRe.MatchString(p) {
			continue
		}
		if state != "" && (strings.EqualFold(p, state) || strings.Contains(lower, strings.ToLower(state))) {
			continue
		}
		if isStreetLike(p) {
			continue
		}
		return p
	}
	return ""
}

func isStreetLike(part string) bool {
	tokens := strings.Fields(strings.ToLower(strings.Trim(part, ".")))
	for _, t := range tokens {
		if streetTypeTokens[strings.Trim(t, ".")] {
			return true
		}
	}
	if len(part) > 0 && part[0] >= '0' && part[0] <= '9' {
		return true
	}
	return false
}

func extractStreet(parts []string) (hasNumber, hasName bool, street string) {
	if len(parts) == 0 {
		return false, false, ""
	}
	candidate := parts[0]
	fields := strings.Fields(candidate)
	if len(fields) == 0 {
		return false, false, ""
	}
	if isLeadingDigit(fields[0]) {
		hasNumber = true
	}
	for _, f := range fields {
		if streetTypeTokens[strings.ToLower(strings.Trim(f, "."))] {
			hasName = true
			break
		}
	}
	if len(fields) >= 2 {
		hasName = hasName || true
	}
	return hasNumber, hasName, candidate
}

func isLeadingDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func strongestMethod(na model.NormalizedAddress) model.NormalizationMethod {
	if na.HasStreetNumber && na.HasStreetName && (na.HasCity || na.HasZip) && na.HasState {
		return model.MethodFullAddress
	}
	if na.HasZip {
		return model.MethodZipOnly
	}
	if na.HasCity && na.HasState {
		return model.MethodCityState
	}
	return model.MethodRaw
}

func buildCanonical(na model.NormalizedAddress, cleaned string) string {
	var base string
	switch na.Method {
	case model.MethodFullAddress:
		parts := []string{na.Street}
		if na.City != "" {
			parts = append(parts, na.City)
		}
		if na.State != "" {
			parts = append(parts, na.State)
		}
		if na.Zip != "" {
			parts = append(parts, na.Zip)
		}
		base = strings.Join(parts, ", ")
	case model.MethodZipOnly:
		base = na.Zip
	case model.MethodCityState:
		base = na.City + ", " + na.State
	default:
		base = cleaned
	}
	return base + ", USA"
}

// QualityScore weights = 0.25·hasStreetNumber + 0.25·hasStreetName +
// 0.20·hasCity + 0.15·hasState + 0.15·hasZip (§4.1).
func qualityScore(na model.NormalizedAddress) float64 {
	var score float64
	if na.HasStreetNumber {
		score += 0.25
	}
	if na.HasStreetName {
		score += 0.25
	}
	if na.HasCity {
		score += 0.20
	}
	if na.HasState {
		score += 0.15
	}
	if na.HasZip {
		score += 0.15
	}
	return score
}
