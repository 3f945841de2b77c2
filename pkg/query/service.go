package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenderscan/pncp-aggregator/pkg/aggregator"
	"github.com/tenderscan/pncp-aggregator/pkg/domain"
	"github.com/tenderscan/pncp-aggregator/pkg/freshness"
	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
	"github.com/tenderscan/pncp-aggregator/pkg/store"
)

// Aggregating is the fan-out contract consumed by the service.
type Aggregating interface {
	Aggregate(ctx context.Context, q pncp.Query, modalities []int) aggregator.Result
}

// Storage is the persisted-store contract consumed by the service.
type Storage interface {
	Read(ctx context.Context, f store.Filter) ([]domain.Notice, error)
	Upsert(ctx context.Context, raws []pncp.RawNotice) (int, error)
}

// Freshness is the refresh-bookkeeping contract consumed by the service.
type Freshness interface {
	NeedsRefresh(ctx context.Context, key freshness.Key) (bool, error)
	MarkRefreshed(ctx context.Context, key freshness.Key, resultCount int) error
}

// Config holds query service configuration.
type Config struct {
	// PageSize is the fixed caller-facing page size.
	PageSize int

	// LookbackDays bounds the upstream publication date range of a
	// refresh cycle.
	LookbackDays int

	// UpstreamPageSize is the page size requested from PNCP.
	UpstreamPageSize int
}

// DefaultConfig returns safe query service defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:         10,
		LookbackDays:     30,
		UpstreamPageSize: 50,
	}
}

// Service answers procurement queries from the local store, refreshing it
// from the upstream first when the freshness policy demands it.
type Service struct {
	aggregator Aggregating
	storage    Storage
	freshness  Freshness
	config     Config
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a query service. Zero-valued config fields fall back to
// defaults.
func New(agg Aggregating, storage Storage, fresh Freshness, cfg Config, logger zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.UpstreamPageSize <= 0 {
		cfg.UpstreamPageSize = def.UpstreamPageSize
	}
	return &Service{
		aggregator: agg,
		storage:    storage,
		freshness:  fresh,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Query runs the full pipeline for one caller query.
//
// Partition failures, page caps, and partial writes degrade the result and
// are reported through Partial/Warning; only a failure to read the local
// store fails the query itself.
func (s *Service) Query(ctx context.Context, spec Spec) (*Result, error) {
	key := freshness.Key{
		StateCode:        spec.StateCode,
		MunicipalityCode: spec.MunicipalityCode,
		Keyword:          spec.Keyword,
	}

	needs, err := s.freshness.NeedsRefresh(ctx, key)
	if err != nil {
		// Degrade to an extra fetch rather than failing the query.
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Freshness check failed - forcing refresh")
		needs = true
	}

	var warnings []string
	if needs {
		warnings = s.refresh(ctx, key, spec)
	}

	records, err := s.storage.Read(ctx, store.Filter{
		StateCode:        spec.StateCode,
		MunicipalityCode: spec.MunicipalityCode,
		Keyword:          spec.Keyword,
	})
	if err != nil {
		// No data to serve; the only user-visible failure in the pipeline.
		return nil, fmt.Errorf("read store: %w", err)
	}

	result := finalize(records, spec, s.config.PageSize)
	if len(warnings) > 0 {
		result.Partial = true
		result.Warning = strings.Join(warnings, "; ")
	}

	s.logger.Info().
		Bool("refreshed", needs).
		Int("matched", result.Total).
		Int("page", result.Page).
		Bool("partial", result.Partial).
		Msg("Query served")

	return &result, nil
}

// refresh runs one aggregation cycle and persists its results, returning
// warnings describing any degradation.
//
// The cycle always covers the full modality set regardless of the spec's
// modality filter: the freshness key excludes modalities, so the stored set
// must be modality-complete for the bookkeeping to be sound. The requested
// subset is applied later, during finalization.
func (s *Service) refresh(ctx context.Context, key freshness.Key, spec Spec) []string {
	now := s.now()
	upstream := pncp.Query{
		From:             now.AddDate(0, 0, -s.config.LookbackDays),
		To:               now,
		StateCode:        spec.StateCode,
		MunicipalityCode: spec.MunicipalityCode,
		PageSize:         s.config.UpstreamPageSize,
	}

	res := s.aggregator.Aggregate(ctx, upstream, pncp.AllModalities())

	var warnings []string
	if n := len(res.PartitionErrors); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d partitions failed, results incomplete", n, len(pncp.AllModalities())))
		for _, pe := range res.PartitionErrors {
			s.logger.Warn().Err(pe.Err).Int("modality", pe.Modality).Msg("Partition failed")
		}
	}
	if res.Capped {
		warnings = append(warnings, "page cap reached for at least one partition, totals are estimates")
	}

	written, err := s.storage.Upsert(ctx, res.Records)
	if err != nil {
		// Write failures are reported, never fatal: committed batches and
		// previously stored records still serve the query.
		s.logger.Error().Err(err).Int("written", written).Msg("Upsert incomplete")
		warnings = append(warnings, fmt.Sprintf("stored %d of %d fetched records", written, len(res.Records)))
	}

	// Recorded unconditionally: an empty or degraded cycle still proves the
	// upstream was consulted, and must not leave the key perpetually stale.
	if err := s.freshness.MarkRefreshed(ctx, key, len(res.Records)); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to record refresh")
	}

	return warnings
}
