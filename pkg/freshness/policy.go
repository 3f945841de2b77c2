// Package freshness decides whether a query must refetch from the upstream
// before it can be answered from the local store. Bookkeeping lives in
// Redis, keyed by a normalized query signature, so concurrent aggregator
// instances share one view of what is fresh.
package freshness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for freshness decisions.
var (
	freshnessHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pncp_freshness_hits_total",
		Help: "Queries answered from the store without an upstream refresh",
	})

	freshnessMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_freshness_misses_total",
		Help: "Queries that required an upstream refresh, by reason",
	}, []string{"reason"}) // "absent", "stale", "error"
)

// DefaultStalenessWindow is the maximum age a refresh record may have before
// the next query forces a new upstream fetch.
const DefaultStalenessWindow = 6 * time.Hour

// Record is the bookkeeping entry written after every completed refresh
// cycle, including cycles that found nothing new.
type Record struct {
	// LastRefreshedAt is when the cycle completed.
	LastRefreshedAt time.Time `json:"last_refreshed_at"`

	// LastResultCount is how many records the cycle collected.
	LastResultCount int `json:"last_result_count"`
}

// Stale reports whether the record is older than the staleness window.
func (r *Record) Stale(window time.Duration, now time.Time) bool {
	return now.Sub(r.LastRefreshedAt) > window
}

// Policy reads and writes freshness records in Redis.
type Policy struct {
	redis  *redis.Client
	window time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewPolicy creates a freshness policy. A non-positive window falls back to
// the default.
func NewPolicy(redisClient *redis.Client, window time.Duration, logger zerolog.Logger) *Policy {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &Policy{
		redis:  redisClient,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// NeedsRefresh reports whether the key must be refreshed before answering.
//
// An absent record means refresh required. A present record requires refresh
// once its age exceeds the staleness window. Redis errors return true along
// with the error so the caller can degrade to a wasteful-but-correct extra
// fetch instead of failing the query.
func (p *Policy) NeedsRefresh(ctx context.Context, key Key) (bool, error) {
	data, err := p.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			freshnessMisses.WithLabelValues("absent").Inc()
			return true, nil
		}
		freshnessMisses.WithLabelValues("error").Inc()
		return true, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt entry, treat as absent.
		p.logger.Warn().Err(err).Str("key", key.String()).Msg("Invalid freshness record")
		freshnessMisses.WithLabelValues("absent").Inc()
		return true, nil
	}

	if rec.Stale(p.window, p.now()) {
		freshnessMisses.WithLabelValues("stale").Inc()
		return true, nil
	}

	freshnessHits.Inc()
	p.logger.Debug().
		Str("key", key.String()).
		Time("last_refreshed_at", rec.LastRefreshedAt).
		Int("last_result_count", rec.LastResultCount).
		Msg("Freshness hit")
	return false, nil
}

// MarkRefreshed records a completed refresh cycle. Called unconditionally
// after every cycle: a cycle that found nothing new still proves freshness
// and must not leave the key perpetually stale.
//
// The Redis TTL mirrors the staleness window so abandoned keys expire on
// their own; the in-record timestamp remains the authoritative check.
func (p *Policy) MarkRefreshed(ctx context.Context, key Key, resultCount int) error {
	rec := Record{
		LastRefreshedAt: p.now(),
		LastResultCount: resultCount,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal freshness record: %w", err)
	}

	if err := p.redis.Set(ctx, key.String(), data, p.window).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	p.logger.Debug().
		Str("key", key.String()).
		Int("result_count", resultCount).
		Msg("Freshness recorded")
	return nil
}
