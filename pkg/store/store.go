// Package store persists procurement notices in Postgres and serves
// filtered reads for the query pipeline.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tenderscan/pncp-aggregator/pkg/domain"
	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
)

// Prometheus metrics for store operations.
var (
	storeUpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_store_upserts_total",
		Help: "Total notice upserts by outcome",
	}, []string{"outcome"})

	storeReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_store_reads_total",
		Help: "Total store reads by outcome",
	}, []string{"outcome"})
)

// upsertBatchSize bounds a single write round trip.
const upsertBatchSize = 500

// psql builds queries with Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PartialWriteError reports an upsert cycle where some batches failed.
// Batches committed before (or after) the failure stand; Written counts
// their rows.
type PartialWriteError struct {
	Written int
	Err     error
}

// Error implements the error interface.
func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write (%d rows committed): %v", e.Written, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// Filter selects stored notices. MunicipalityCode, when set, takes
// precedence over StateCode. Keyword is a case-insensitive substring match
// over title and organization.
type Filter struct {
	StateCode        string
	MunicipalityCode string
	Keyword          string
}

// Store is the Postgres gateway for procurement notices.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a store backed by pool.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// Open connects a pgx pool to url and returns a store over it.
func Open(ctx context.Context, url string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return New(pool, logger), nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// noticeColumns is the canonical column order used by reads and writes.
var noticeColumns = []string{
	"external_id",
	"title",
	"organization",
	"modality_code",
	"modality_label",
	"status",
	"municipality",
	"municipality_code",
	"state_code",
	"publication_date",
	"proposal_open_date",
	"proposal_close_date",
	"expiration_date",
	"estimated_value",
	"official_link",
	"raw_payload",
}

// buildReadQuery translates a filter into the SELECT statement. Split out
// for testability.
func buildReadQuery(f Filter) (string, []any, error) {
	b := psql.Select(noticeColumns...).From("notices")

	if f.MunicipalityCode != "" {
		b = b.Where(sq.Eq{"municipality_code": f.MunicipalityCode})
	} else if f.StateCode != "" {
		b = b.Where(sq.Eq{"state_code": f.StateCode})
	}

	if f.Keyword != "" {
		pattern := "%" + f.Keyword + "%"
		b = b.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"organization": pattern},
		})
	}

	return b.OrderBy("publication_date DESC NULLS LAST, external_id").ToSql()
}

// Read returns all stored notices matching the filter, ordered by
// publication date descending with dateless notices last.
func (s *Store) Read(ctx context.Context, f Filter) ([]domain.Notice, error) {
	query, args, err := buildReadQuery(f)
	if err != nil {
		return nil, fmt.Errorf("build read query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		storeReadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("query notices: %w", err)
	}
	defer rows.Close()

	var notices []domain.Notice
	for rows.Next() {
		var n domain.Notice
		if err := rows.Scan(
			&n.ExternalID,
			&n.Title,
			&n.Organization,
			&n.ModalityCode,
			&n.ModalityLabel,
			&n.Status,
			&n.Municipality,
			&n.MunicipalityCode,
			&n.StateCode,
			&n.PublicationDate,
			&n.ProposalOpenDate,
			&n.ProposalCloseDate,
			&n.ExpirationDate,
			&n.EstimatedValue,
			&n.OfficialLink,
			&n.RawPayload,
		); err != nil {
			storeReadsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		notices = append(notices, n)
	}
	if err := rows.Err(); err != nil {
		storeReadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("iterate notices: %w", err)
	}

	storeReadsTotal.WithLabelValues("ok").Inc()
	return notices, nil
}

// upsertSQL merges a notice on its external identifier, last write wins.
// Status and dates change upstream over time, so conflicting rows are
// updated rather than ignored.
const upsertSQL = `INSERT INTO notices (
	external_id, title, organization, modality_code, modality_label, status,
	municipality, municipality_code, state_code,
	publication_date, proposal_open_date, proposal_close_date,
	expiration_date, estimated_value, official_link, raw_payload
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (external_id) DO UPDATE SET
	title = EXCLUDED.title,
	organization = EXCLUDED.organization,
	modality_code = EXCLUDED.modality_code,
	modality_label = EXCLUDED.modality_label,
	status = EXCLUDED.status,
	municipality = EXCLUDED.municipality,
	municipality_code = EXCLUDED.municipality_code,
	state_code = EXCLUDED.state_code,
	publication_date = EXCLUDED.publication_date,
	proposal_open_date = EXCLUDED.proposal_open_date,
	proposal_close_date = EXCLUDED.proposal_close_date,
	expiration_date = EXCLUDED.expiration_date,
	estimated_value = EXCLUDED.estimated_value,
	official_link = EXCLUDED.official_link,
	raw_payload = EXCLUDED.raw_payload,
	updated_at = now()`

// Upsert maps raw upstream records into notices and writes them in batches.
//
// Records without a control number are dropped: without the stable external
// identifier there is nothing to deduplicate on. A failed batch does not
// roll back committed batches; the error is surfaced as a *PartialWriteError
// alongside the count of rows actually written.
func (s *Store) Upsert(ctx context.Context, raws []pncp.RawNotice) (int, error) {
	if len(raws) == 0 {
		return 0, nil
	}

	now := s.now()
	written := 0
	var firstErr error

	for start := 0; start < len(raws); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(raws) {
			end = len(raws)
		}

		batch := &pgx.Batch{}
		queued := 0
		for _, raw := range raws[start:end] {
			if raw.ControlNumber == "" {
				storeUpsertsTotal.WithLabelValues("skipped").Inc()
				continue
			}
			n := pncp.MapNotice(raw, now)
			batch.Queue(upsertSQL,
				n.ExternalID,
				n.Title,
				n.Organization,
				n.ModalityCode,
				n.ModalityLabel,
				n.Status,
				n.Municipality,
				n.MunicipalityCode,
				n.StateCode,
				n.PublicationDate,
				n.ProposalOpenDate,
				n.ProposalCloseDate,
				n.ExpirationDate,
				n.EstimatedValue,
				n.OfficialLink,
				n.RawPayload,
			)
			queued++
		}
		if queued == 0 {
			continue
		}

		if err := s.sendBatch(ctx, batch); err != nil {
			storeUpsertsTotal.WithLabelValues("error").Add(float64(queued))
			s.logger.Error().
				Err(err).
				Int("batch_start", start).
				Int("batch_size", queued).
				Msg("Upsert batch failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		written += queued
		storeUpsertsTotal.WithLabelValues("ok").Add(float64(queued))
	}

	if firstErr != nil {
		return written, &PartialWriteError{Written: written, Err: firstErr}
	}
	return written, nil
}

// sendBatch executes one batch round trip, surfacing the first queued
// statement error.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

// IsPartialWrite reports whether err is a partial-write outcome.
func IsPartialWrite(err error) bool {
	var pw *PartialWriteError
	return errors.As(err, &pw)
}
