// Package geocode implements the Geocoder (C2): normalized address →
// coordinate + precision + confidence, with retries, rate limiting, and a
// single external HTTP provider. Grounded directly on
// sells-group-research-cli/pkg/geocode/{client,provider,google,cache}.go:
// the Provider interface, the cascading-cache shape, and the Google
// location_type → precision mapping.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shiva/geomatch/internal/model"
)

// Kind classifies a geocode failure per §4.2/§7's error taxonomy.
type Kind string

const (
	KindNoAPIKey      Kind = "NO_API_KEY"      // non-retryable
	KindOverQueryLimit Kind = "OVER_QUERY_LIMIT" // retryable/transient
	KindZeroResults   Kind = "ZERO_RESULTS"    // non-retryable
	KindBreakerOpen   Kind = "BREAKER_OPEN"    // non-retryable
	KindTransient     Kind = "TRANSIENT"       // retryable
)

// Error is the Geocoder's result-variant error type, carrying whether a
// retry is worth attempting.
type Error struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocode: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("geocode: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider is the abstraction behind which the real HTTP provider and the
// no-credential fallback both live (§9 polymorphism).
type Provider interface {
	Name() string
	Geocode(ctx context.Context, req Request) (Response, error)
	Available() bool
}

// Request carries everything a provider needs to geocode one address,
// including the component-restriction fields from §4.2.
type Request struct {
	CanonicalAddress string
	City             string
	State            string
	Zip              string
	RestrictToZip    bool // ZIP-only: restrict to country code US
	RestrictComponents bool // ZIP+state+recognized city: structured filter
}

// Response is a provider's raw geocode result before confidence scoring.
type Response struct {
	Lat       float64
	Lng       float64
	Precision model.GeocodePrecision
}

// GoogleProvider is the real HTTP provider, modeled on
// sells-group-research-cli/pkg/geocode/google.go.
type GoogleProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewGoogleProvider constructs a provider bound to an API key. If apiKey
// is empty, Available() reports false and callers should fail with
// NO_API_KEY rather than invoking Geocode.
func NewGoogleProvider(apiKey string, httpClient *http.Client) *GoogleProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleProvider{apiKey: apiKey, httpClient: httpClient, baseURL: "https://maps.googleapis.com/maps/api/geocode/json"}
}

func (g *GoogleProvider) Name() string     { return "google" }
func (g *GoogleProvider) Available() bool  { return g.apiKey != "" }

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode calls the Google Geocoding API and maps location_type to the
// precision taxonomy verbatim (§4.2).
func (g *GoogleProvider) Geocode(ctx context.Context, req Request) (Response, error) {
	if !g.Available() {
		return Response{}, &Error{Kind: KindNoAPIKey, Retryable: false, Err: fmt.Errorf("no google api key configured")}
	}

	q := url.Values{}
	q.Set("address", req.CanonicalAddress)
	q.Set("key", g.apiKey)
	if req.RestrictComponents {
		q.Set("components", fmt.Sprintf("postal_code:%s|administrative_area:%s|locality:%s|country:US", req.Zip, req.State, req.City))
	} else if req.RestrictToZip {
		q.Set("components", "country:US")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("geocode: build request: %w", err)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Kind: KindTransient, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	var parsed googleGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, &Error{Kind: KindTransient, Retryable: true, Err: fmt.Errorf("decode response: %w", err)}
	}

	switch parsed.Status {
	case "OK":
		// fallthrough
	case "ZERO_RESULTS":
		return Response{}, &Error{Kind: KindZeroResults, Retryable: false, Err: fmt.Errorf("zero results")}
	case "OVER_QUERY_LIMIT":
		return Response{}, &Error{Kind: KindOverQueryLimit, Retryable: true, Err: fmt.Errorf("over query limit")}
	default:
		return Response{}, &Error{Kind: KindTransient, Retryable: true, Err: fmt.Errorf("status %s", parsed.Status)}
	}

	if len(parsed.Results) == 0 {
		return Response{}, &Error{Kind: KindZeroResults, Retryable: false, Err: fmt.Errorf("zero results")}
	}

	result := parsed.Results[0]
	return Response{
		Lat:       result.Geometry.Location.Lat,
		Lng:       result.Geometry.Location.Lng,
		Precision: locationTypeToPrecision(result.Geometry.LocationType),
	}, nil
}

// locationTypeToPrecision maps Google's location_type verbatim onto §3's
// precision enum.
func locationTypeToPrecision(locationType string) model.GeocodePrecision {
	switch locationType {
	case "ROOFTOP":
		return model.PrecisionRooftop
	case "RANGE_INTERPOLATED":
		return model.PrecisionRangeInterpolated
	case "GEOMETRIC_CENTER":
		return model.PrecisionGeometricCenter
	default:
		return model.PrecisionApproximate
	}
}
