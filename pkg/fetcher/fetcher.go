// Package fetcher issues single rate-limited requests against the PNCP
// consulta API with timeout, retry-with-backoff, and 429 handling.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
)

// Prometheus metrics for upstream fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_requests_total",
		Help: "Total PNCP requests by outcome",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pncp_request_duration_seconds",
		Help:    "PNCP request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pncp_retries_total",
		Help: "Total retry attempts against PNCP",
	})

	fetchRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pncp_retry_exhausted_total",
		Help: "Total number of times the retry budget was exhausted",
	})
)

// maxErrorBody bounds how much of an error response body is retained.
const maxErrorBody = 4 << 10

// Config holds the fetcher configuration.
type Config struct {
	// RequestTimeout is the per-request deadline.
	RequestTimeout time.Duration

	// MaxRetries is the retry ceiling for 429 and timeout responses,
	// including the initial attempt.
	MaxRetries int

	// InitialBackoff is the base of the exponential 429 backoff.
	InitialBackoff time.Duration

	// MaxBackoff caps a single backoff wait.
	MaxBackoff time.Duration

	// MinInterval is the minimum spacing between physical requests,
	// enforced on the success path as well to stay clear of the upstream
	// limiter.
	MinInterval time.Duration

	// UserAgent identifies this client to PNCP.
	UserAgent string
}

// DefaultConfig returns a configuration safe against the PNCP limiter.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MinInterval:    200 * time.Millisecond,
		UserAgent:      "pncp-aggregator/1.0",
	}
}

// Fetcher issues single page requests. It holds no per-call state; the
// embedded limiter only spaces out physical requests.
type Fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a fetcher from cfg. Zero-valued fields fall back to defaults.
func New(cfg Config, logger zerolog.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		config:  cfg,
		logger:  logger,
	}
}

// Fetch retrieves and decodes one consulta page.
//
// A 204 response is a valid terminal state and yields an empty page, not an
// error. 429 responses are retried with exponential backoff up to the
// ceiling; exhaustion surfaces ErrRateLimited. Timeouts are retried the same
// way and surface ErrTimeout. Any other non-success status or a malformed
// body yields an *UpstreamError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*pncp.PageResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= f.config.MaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		page, retriable, err := f.fetchOnce(ctx, url)
		if err == nil {
			if attempt > 1 {
				f.logger.Info().
					Str("url", url).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return page, nil
		}
		lastErr = err

		if !retriable {
			return nil, err
		}

		if attempt >= f.config.MaxRetries {
			break
		}

		fetchRetriesTotal.Inc()
		wait := backoffFor(f.config, attempt)
		f.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
		}
	}

	fetchRetryExhaustedTotal.Inc()
	f.logger.Warn().
		Err(lastErr).
		Str("url", url).
		Int("max_attempts", f.config.MaxRetries).
		Msg("Retry attempts exhausted")

	if isTimeout(lastErr) {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrTimeout, f.config.MaxRetries, lastErr)
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, f.config.MaxRetries, lastErr)
}

// fetchOnce performs a single physical request. The second return value
// reports whether the error is worth retrying.
func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*pncp.PageResponse, bool, error) {
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	reqCtx, cancel := context.WithTimeout(ctx, f.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		if isTimeout(err) {
			return nil, true, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		// Valid terminal state for a partition/page combination.
		fetchRequestsTotal.WithLabelValues("204").Inc()
		return &pncp.PageResponse{Empty: true}, false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		fetchRequestsTotal.WithLabelValues("429").Inc()
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, true, fmt.Errorf("%w: status 429", ErrRateLimited)

	case resp.StatusCode != http.StatusOK:
		fetchRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, false, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var page pncp.PageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		fetchRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, false, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("malformed body: %v", err),
		}
	}

	fetchRequestsTotal.WithLabelValues("200").Inc()
	return &page, false, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}
