package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/resilience"
)

// majorUrbanSubdivisions is the closed set of ZIP sub-areas worth a
// structured component filter (§4.2). Small and representative rather
// than exhaustive — extend as disambiguation issues surface.
var majorUrbanSubdivisions = map[string]bool{
	"manhattan": true, "brooklyn": true, "queens": true, "bronx": true,
	"staten island": true, "downtown": true, "hollywood": true,
}

// Client is the Geocoder (C2): a cascading provider with rate limiting,
// retry/backoff, a consecutive-failure circuit breaker, and a Postgres
// result cache. Grounded on sells-group-research-cli's CascadeClient.
type Client struct {
	provider     Provider
	pool         *pgxpool.Pool
	limiter      *rate.Limiter
	breaker      *resilience.CircuitBreaker
	retryCfg     resilience.RetryConfig
	cacheTTLDays int
	logger       *zap.Logger
}

// Config bundles Client construction parameters.
type Config struct {
	Provider       Provider
	Pool           *pgxpool.Pool
	MinSpacing     time.Duration
	MaxRetries     int
	BreakerThreshold int
	CacheTTLDays   int
	Logger         *zap.Logger
}

// New constructs a Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	spacing := cfg.MinSpacing
	if spacing <= 0 {
		spacing = 100 * time.Millisecond
	}
	c := &Client{
		provider: cfg.Provider,
		pool:     cfg.Pool,
		limiter:  rate.NewLimiter(rate.Every(spacing), 1),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			OnStateChange: func(from, to resilience.CircuitState) {
				logger.Warn("geocode circuit breaker state change", zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
		cacheTTLDays: cfg.CacheTTLDays,
		logger:       logger,
	}
	c.retryCfg = resilience.GeocodeRetryConfig(max(cfg.MaxRetries, 1), func(err error) bool {
		var gerr *Error
		if errors.As(err, &gerr) {
			return gerr.Retryable
		}
		return true
	})
	c.retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("geocode retry", zap.Int("attempt", attempt), zap.Error(err), zap.Duration("wait", wait))
	}
	return c
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Geocode resolves a NormalizedAddress to a Geocode, consulting the cache
// first, then the rate-limited/retried/circuit-broken provider (§4.2).
func (c *Client) Geocode(ctx context.Context, na model.NormalizedAddress) (*model.Geocode, error) {
	if na.CanonicalString == "" {
		return nil, &Error{Kind: KindZeroResults, Retryable: false, Err: fmt.Errorf("empty normalized address")}
	}

	key := cacheKey(na.CanonicalString)
	if cached, err := checkCache(ctx, c.pool, key, c.cacheTTLDays); err != nil {
		c.logger.Warn("geocode cache lookup failed", zap.Error(err))
	} else if cached != nil {
		return &model.Geocode{
			Lat: cached.Lat, Lng: cached.Lng, Precision: cached.Precision,
			Confidence: cached.Confidence, Source: cached.Source,
			AddressUsed: cached.AddressUsed, UpdatedAt: cached.CachedAt,
			NeedsVerification: needsVerification(cached.Precision, cached.Confidence, na.Method),
		}, nil
	}

	if c.breaker.Open() {
		return nil, &Error{Kind: KindBreakerOpen, Retryable: false, Err: fmt.Errorf("circuit breaker open after repeated failures")}
	}

	req := buildRequest(na)

	resp, err := resilience.DoVal(ctx, c.retryCfg, func(ctx context.Context) (Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
		return c.provider.Geocode(ctx, req)
	})
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()

	confidence := confidenceFor(resp.Precision, na.QualityScore, na.Method)
	g := &model.Geocode{
		Lat: resp.Lat, Lng: resp.Lng, Precision: resp.Precision,
		Confidence: confidence, Source: sourceForMethod(na.Method),
		AddressUsed: na.CanonicalString, UpdatedAt: time.Now(),
	}
	g.NeedsVerification = needsVerification(g.Precision, g.Confidence, na.Method)

	if err := storeCache(ctx, c.pool, key, g); err != nil {
		c.logger.Warn("geocode cache store failed", zap.Error(err))
	}

	return g, nil
}

func buildRequest(na model.NormalizedAddress) Request {
	req := Request{CanonicalAddress: na.CanonicalString, City: na.City, State: na.State, Zip: na.Zip}
	if na.HasZip && na.HasState && majorUrbanSubdivisions[normalizedCity(na.City)] {
		req.RestrictComponents = true
	} else if na.Method == model.MethodZipOnly {
		req.RestrictToZip = true
	}
	return req
}

func normalizedCity(city string) string {
	out := make([]byte, 0, len(city))
	for i := 0; i < len(city); i++ {
		b := city[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out = append(out, b)
	}
	return string(out)
}

// confidenceFor implements §4.2's confidence formula.
func confidenceFor(precision model.GeocodePrecision, addressQuality float64, method model.NormalizationMethod) float64 {
	base := map[model.GeocodePrecision]float64{
		model.PrecisionRooftop:           1.0,
		model.PrecisionRangeInterpolated: 0.8,
		model.PrecisionGeometricCenter:   0.6,
		model.PrecisionApproximate:       0.3,
	}[precision]

	if precision == model.PrecisionRooftop && addressQuality < 0.5 {
		base *= 0.8
	}
	if method == model.MethodZipOnly && precision == model.PrecisionGeometricCenter {
		base = 0.6
	}
	return base
}

// needsVerification implements §4.2's simpler operational definition
// (distinct from §3's fuller invariant, which folds in manual-pin
// provenance handled separately by the /location/update handler).
func needsVerification(precision model.GeocodePrecision, confidence float64, method model.NormalizationMethod) bool {
	return precision == model.PrecisionApproximate || confidence < 0.5 || method != model.MethodFullAddress
}

func sourceForMethod(method model.NormalizationMethod) model.GeocodeSource {
	switch method {
	case model.MethodFullAddress:
		return model.SourceFullAddress
	case model.MethodZipOnly:
		return model.SourceZipOnly
	case model.MethodCityState:
		return model.SourceCityState
	default:
		return model.SourceFullAddress
	}
}
