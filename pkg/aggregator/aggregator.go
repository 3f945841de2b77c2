// Package aggregator fans out partition fetches across contracting modality
// codes with bounded concurrency and collects best-effort results.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tenderscan/pncp-aggregator/pkg/pagination"
	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
)

// Prometheus metrics for fan-out aggregation.
var (
	partitionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pncp_partition_failures_total",
		Help: "Total partition fetches that failed entirely",
	})

	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pncp_aggregation_duration_seconds",
		Help:    "Duration of full fan-out aggregation cycles",
		Buckets: []float64{1, 5, 10, 30, 60, 120},
	})
)

// PartitionFetcher walks all pages of a single modality.
type PartitionFetcher interface {
	FetchPartition(ctx context.Context, q pncp.Query, modality int) (pagination.PartitionResult, error)
}

// Config holds aggregator configuration.
type Config struct {
	// MaxConcurrency caps how many partitions are fetched in flight at
	// once. The upstream limiter is shared across partitions, so this
	// must stay small.
	MaxConcurrency int
}

// DefaultConfig returns safe aggregator defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 4}
}

// PartitionError records the failure of one modality's fetch.
type PartitionError struct {
	Modality int
	Err      error
}

// Error implements the error interface.
func (e PartitionError) Error() string {
	return fmt.Sprintf("modality %d: %v", e.Modality, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e PartitionError) Unwrap() error {
	return e.Err
}

// Result is the merged outcome of a fan-out cycle.
type Result struct {
	// Records are the raw records from all succeeding partitions.
	Records []pncp.RawNotice

	// TotalApprox sums each partition's self-reported total. Upstream
	// totals are partition-scoped and not deduplicated, so this is an
	// upper-bound estimate, not ground truth.
	TotalApprox int

	// Capped reports that at least one partition hit the page cap.
	Capped bool

	// PartitionErrors holds one entry per failed partition, sorted by
	// modality code.
	PartitionErrors []PartitionError
}

// Partial reports whether the result is incomplete in any way.
func (r Result) Partial() bool {
	return r.Capped || len(r.PartitionErrors) > 0
}

// Aggregator runs partition fetches concurrently.
type Aggregator struct {
	fetcher PartitionFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates an aggregator. Zero-valued config fields fall back to defaults.
func New(fetcher PartitionFetcher, cfg Config, logger zerolog.Logger) *Aggregator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Aggregator{
		fetcher: fetcher,
		config:  cfg,
		logger:  logger,
	}
}

// Aggregate fetches every listed modality with bounded concurrency.
//
// A single partition's failure never invalidates the cycle: its error is
// captured in PartitionErrors and the records from succeeding partitions are
// still returned. An empty modality list expands to all known modalities.
func (a *Aggregator) Aggregate(ctx context.Context, q pncp.Query, modalities []int) Result {
	if len(modalities) == 0 {
		modalities = pncp.AllModalities()
	}

	start := time.Now()
	defer func() {
		aggregationDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		mu     sync.Mutex
		result Result
	)

	// Workers always return nil: partition failures are data, not group
	// errors, and must not cancel sibling partitions.
	g := new(errgroup.Group)
	g.SetLimit(a.config.MaxConcurrency)

	for _, modality := range modalities {
		g.Go(func() error {
			part, err := a.fetcher.FetchPartition(ctx, q, modality)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				partitionFailuresTotal.Inc()
				result.PartitionErrors = append(result.PartitionErrors, PartitionError{
					Modality: modality,
					Err:      err,
				})
				return nil
			}
			result.Records = append(result.Records, part.Records...)
			result.TotalApprox += part.TotalRecords
			result.Capped = result.Capped || part.Capped
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.PartitionErrors, func(i, j int) bool {
		return result.PartitionErrors[i].Modality < result.PartitionErrors[j].Modality
	})

	a.logger.Info().
		Int("partitions", len(modalities)).
		Int("failed_partitions", len(result.PartitionErrors)).
		Int("records", len(result.Records)).
		Int("total_approx", result.TotalApprox).
		Bool("capped", result.Capped).
		Dur("duration", time.Since(start)).
		Msg("Aggregation cycle complete")

	return result
}
