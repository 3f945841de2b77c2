// Package pagination walks all result pages of one contracting modality
// until exhaustion or a safety page cap.
package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
)

// PageFetcher is the single-request contract the paginator drives.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*pncp.PageResponse, error)
}

// Config holds paginator configuration.
type Config struct {
	// BaseURL is the consulta API root.
	BaseURL string

	// PageCap bounds how many pages are fetched per modality, so a
	// misbehaving upstream reporting an inflated page count cannot stall
	// a refresh cycle.
	PageCap int
}

// DefaultConfig returns safe paginator defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: pncp.DefaultBaseURL,
		PageCap: 20,
	}
}

// PartitionResult is the materialized page walk for one modality.
type PartitionResult struct {
	// Records are all records collected across fetched pages.
	Records []pncp.RawNotice

	// TotalRecords is the upstream's self-reported total for the
	// modality. When Capped is true the collected records undercount it.
	TotalRecords int

	// Capped reports that the walk stopped at the page cap before
	// exhausting the upstream's pages.
	Capped bool
}

// Paginator fetches every page of a modality through a PageFetcher.
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a paginator. Zero-valued config fields fall back to defaults.
func New(fetcher PageFetcher, cfg Config, logger zerolog.Logger) *Paginator {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = def.PageCap
	}
	return &Paginator{
		fetcher: fetcher,
		config:  cfg,
		logger:  logger,
	}
}

// FetchPartition walks all pages for one modality.
//
// Page 1 establishes the total page count; totals of zero (or an absent
// field, which decodes to zero) mean no further pages. A failure on page 1
// fails the partition since nothing was learned. Failures on later pages
// are logged and skipped, retaining the partition's partial results.
func (p *Paginator) FetchPartition(ctx context.Context, q pncp.Query, modality int) (PartitionResult, error) {
	start := time.Now()

	first, err := p.fetcher.Fetch(ctx, pncp.PageURL(p.config.BaseURL, q, modality, 1))
	if err != nil {
		return PartitionResult{}, fmt.Errorf("fetch first page (modality %d): %w", modality, err)
	}

	result := PartitionResult{
		Records:      first.Data,
		TotalRecords: first.TotalRecords,
	}

	if first.Empty || first.TotalPages <= 1 {
		p.logger.Debug().
			Int("modality", modality).
			Int("records", len(result.Records)).
			Dur("duration", time.Since(start)).
			Msg("Partition fetch complete (single page)")
		return result, nil
	}

	lastPage := first.TotalPages
	if lastPage > p.config.PageCap {
		lastPage = p.config.PageCap
		result.Capped = true
		p.logger.Warn().
			Int("modality", modality).
			Int("total_pages", first.TotalPages).
			Int("page_cap", p.config.PageCap).
			Msg("Page walk capped")
	}

	fetched := 1
	skipped := 0
	for page := 2; page <= lastPage; page++ {
		select {
		case <-ctx.Done():
			// Deadline expired mid-walk; keep what was collected.
			p.logger.Warn().
				Int("modality", modality).
				Int("page", page).
				Msg("Partition walk abandoned (context done)")
			return result, nil
		default:
		}

		resp, err := p.fetcher.Fetch(ctx, pncp.PageURL(p.config.BaseURL, q, modality, page))
		if err != nil {
			skipped++
			p.logger.Warn().
				Err(err).
				Int("modality", modality).
				Int("page", page).
				Msg("Page fetch failed - skipping")
			continue
		}
		result.Records = append(result.Records, resp.Data...)
		fetched++
	}

	p.logger.Info().
		Int("modality", modality).
		Int("pages_fetched", fetched).
		Int("pages_skipped", skipped).
		Int("records", len(result.Records)).
		Dur("duration", time.Since(start)).
		Msg("Partition fetch complete")

	return result, nil
}
