// Package travel implements the Travel-Time Cache (C3): coordinate pair +
// mode + time-bucket → pessimistic/avg duration, with Redis fast path and
// Postgres slow path, grounded directly on the teacher's
// PricingRepository.GetDemandSupply (internal/repository/pricing_repository.go).
package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/pkg/geo"
)

// Config governs sampling, buckets, and concurrency.
type Config struct {
	BucketName       string
	SampleTimes      []string
	LegacyBuckets    []string
	TTL              time.Duration
	ConcurrencyLimit int64
	RedisTTL         time.Duration
}

// Cache is the Travel-Time Cache (C3).
type Cache struct {
	redis  *redis.Client
	repo   *repository.TravelTimeRepository
	provider Provider
	sem    *semaphore.Weighted
	cfg    Config
	logger *zap.Logger
}

// New constructs a Cache. provider may be the Haversine fallback or a
// real routing provider (§9).
func New(redisClient *redis.Client, repo *repository.TravelTimeRepository, provider Provider, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = 5
	}
	return &Cache{redis: redisClient, repo: repo, provider: provider, sem: semaphore.NewWeighted(limit), cfg: cfg, logger: logger}
}

// Result is what GetTravelTime returns: the pessimistic duration used for
// matching, plus enough detail for the matcher's explain record.
type Result struct {
	DurationSecPessimistic float64
	DurationSecAvg         float64
	DistanceMeters         *float64
	Bucket                 string
	SampleCount            int
	CacheHit               bool
	ExternalCalls          int
	Fallback               bool
}

// redisKey builds the fast-path key matching the Postgres composite
// unique key's fields.
func redisKey(originHash, destHash string, originType, destType model.EntityType, mode model.TravelMode, bucket string) string {
	return fmt.Sprintf("travel:%s:%s:%s:%s:%s:%s", originHash, destHash, originType, destType, mode, bucket)
}

type redisPayload struct {
	DurationSecAvg         float64  `json:"avg"`
	DurationSecMedian      float64  `json:"median"`
	DurationSecPessimistic float64  `json:"pessimistic"`
	DistanceMeters         *float64 `json:"distance_meters"`
	SampleCount            int      `json:"sample_count"`
}

// GetTravelTime resolves the pessimistic duration for (origin, dest,
// mode), trying Redis, then Postgres (active bucket + legacy buckets),
// then computing fresh samples under the concurrency gate (§4.2/§5).
func (c *Cache) GetTravelTime(ctx context.Context, origin, dest geo.Point, originType, destType model.EntityType, mode model.TravelMode) (Result, error) {
	originHash := geo.RoundedHash(origin)
	destHash := geo.RoundedHash(dest)
	buckets := append([]string{c.cfg.BucketName}, c.cfg.LegacyBuckets...)

	for _, bucket := range buckets {
		key := redisKey(originHash, destHash, originType, destType, mode, bucket)
		if raw, err := c.redis.Get(ctx, key).Result(); err == nil {
			var payload redisPayload
			if jsonErr := json.Unmarshal([]byte(raw), &payload); jsonErr == nil {
				return Result{
					DurationSecPessimistic: payload.DurationSecPessimistic,
					DurationSecAvg:         payload.DurationSecAvg,
					DistanceMeters:         payload.DistanceMeters,
					Bucket:                 bucket,
					SampleCount:            payload.SampleCount,
					CacheHit:               true,
				}, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn("travel cache redis error", zap.Error(err))
		}
	}

	entry, err := c.repo.Get(ctx, originHash, destHash, originType, destType, mode, buckets)
	if err != nil {
		c.logger.Warn("travel cache postgres error", zap.Error(err))
	}
	if entry != nil {
		c.repopulateRedis(ctx, entry)
		return Result{
			DurationSecPessimistic: entry.DurationSecPessimistic,
			DurationSecAvg:         entry.DurationSecAvg,
			DistanceMeters:         entry.DistanceMeters,
			Bucket:                 entry.Bucket,
			SampleCount:            len(entry.SampleDurations),
			CacheHit:               true,
		}, nil
	}

	// The Haversine provider is itself the fallback estimate, so like an
	// unavailable provider it is answered here: flagged, never persisted.
	if _, estimate := c.provider.(haversineProvider); estimate || !c.provider.Available() {
		seconds := geo.EstimateSecondsByMode(origin, dest, mode)
		meters := geo.HaversineM(origin, dest)
		return Result{
			DurationSecPessimistic: seconds,
			DurationSecAvg:         seconds,
			DistanceMeters:         &meters,
			Bucket:                 c.cfg.BucketName,
			SampleCount:            0,
			CacheHit:               false,
			Fallback:               true,
		}, nil
	}

	return c.computeFresh(ctx, origin, dest, originHash, destHash, originType, destType, mode)
}

func (c *Cache) computeFresh(ctx context.Context, origin, dest geo.Point, originHash, destHash string, originType, destType model.EntityType, mode model.TravelMode) (Result, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("travel: acquire concurrency slot: %w", err)
	}
	defer c.sem.Release(1)

	var samples []Sample
	externalCalls := 0
	for _, st := range c.cfg.SampleTimes {
		externalCalls++
		s, err := c.provider.Sample(ctx, origin, dest, mode, st)
		if err != nil {
			c.logger.Warn("travel sample failed", zap.String("sample_time", st), zap.Error(err))
			continue
		}
		samples = append(samples, s)
	}

	if len(samples) == 0 {
		return Result{ExternalCalls: externalCalls}, fmt.Errorf("travel: all samples failed for %s->%s", originHash, destHash)
	}

	avg, median, pessimistic, distance := aggregate(samples)

	entry := &model.TravelTimeCacheEntry{
		OriginHash: originHash, DestHash: destHash, OriginType: originType, DestType: destType,
		Mode: mode, Bucket: c.cfg.BucketName,
		DurationSecAvg: avg, DurationSecMedian: median, DurationSecPessimistic: pessimistic,
		DistanceMeters: distance,
	}
	if err := c.repo.Upsert(ctx, entry, c.cfg.TTL); err != nil {
		c.logger.Warn("travel cache upsert failed", zap.Error(err))
	}
	c.repopulateRedis(ctx, entry)

	return Result{
		DurationSecPessimistic: pessimistic,
		DurationSecAvg:         avg,
		DistanceMeters:         distance,
		Bucket:                 c.cfg.BucketName,
		SampleCount:            len(samples),
		CacheHit:               false,
		ExternalCalls:          externalCalls,
	}, nil
}

// aggregate implements §4.2's formulas.
func aggregate(samples []Sample) (avg, median, pessimistic float64, distance *float64) {
	durations := make([]float64, len(samples))
	var distSum float64
	var distCount int
	for i, s := range samples {
		durations[i] = s.DurationSec
		if s.DistanceMeters != nil {
			distSum += *s.DistanceMeters
			distCount++
		}
	}

	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	avg = sum / float64(len(durations))

	sorted := append([]float64(nil), durations...)
	sort.Float64s(sorted)
	if len(sorted)%2 == 1 {
		median = sorted[len(sorted)/2]
	} else {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	maxSample := sorted[len(sorted)-1]
	pessimistic = math.Max(maxSample, math.Round(median*1.1))

	if distCount > 0 {
		meanDist := math.Round(distSum / float64(distCount))
		distance = &meanDist
	}

	return avg, median, pessimistic, distance
}

func (c *Cache) repopulateRedis(ctx context.Context, entry *model.TravelTimeCacheEntry) {
	payload := redisPayload{
		DurationSecAvg:         entry.DurationSecAvg,
		DurationSecMedian:      entry.DurationSecMedian,
		DurationSecPessimistic: entry.DurationSecPessimistic,
		DistanceMeters:         entry.DistanceMeters,
		SampleCount:            len(entry.SampleDurations),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	key := redisKey(entry.OriginHash, entry.DestHash, entry.OriginType, entry.DestType, entry.Mode, entry.Bucket)
	ttl := c.cfg.RedisTTL
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	if err := c.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("travel cache redis repopulate failed", zap.Error(err))
	}
}

// InvalidateEntity deletes every cache row (Postgres + the corresponding
// Redis keys for the active and legacy buckets) where entityHash appears
// as origin or destination (§4.2).
func (c *Cache) InvalidateEntity(ctx context.Context, entityType model.EntityType, entityHash string) error {
	if err := c.repo.InvalidateByEntity(ctx, entityType, entityHash); err != nil {
		return fmt.Errorf("invalidate travel cache: %w", err)
	}
	c.invalidateRedisKeysContaining(ctx, entityHash)
	return nil
}

// InvalidateByHash invalidates by coordinate hash alone (bulk edits with
// no entity id, §4.2).
func (c *Cache) InvalidateByHash(ctx context.Context, hash string) error {
	if err := c.repo.InvalidateByHash(ctx, hash); err != nil {
		return fmt.Errorf("invalidate travel cache by hash: %w", err)
	}
	c.invalidateRedisKeysContaining(ctx, hash)
	return nil
}

// invalidateRedisKeysContaining scans for any travel:* key mentioning the
// hash and deletes it. The key space is small and bounded by active
// pairs, so a SCAN is acceptable here (mirrors the teacher's targeted
// surge-cache key deletes in InvalidateSurgeCache, generalized to a scan
// since our key cannot be reconstructed without knowing the counterpart
// hash/mode/bucket).
func (c *Cache) invalidateRedisKeysContaining(ctx context.Context, hash string) {
	iter := c.redis.Scan(ctx, 0, fmt.Sprintf("travel:*%s*", hash), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("travel cache redis invalidate failed", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
}
