package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tenderscan/pncp-aggregator/internal/config"
	"github.com/tenderscan/pncp-aggregator/pkg/aggregator"
	"github.com/tenderscan/pncp-aggregator/pkg/fetcher"
	"github.com/tenderscan/pncp-aggregator/pkg/freshness"
	"github.com/tenderscan/pncp-aggregator/pkg/logging"
	"github.com/tenderscan/pncp-aggregator/pkg/pagination"
	"github.com/tenderscan/pncp-aggregator/pkg/query"
	"github.com/tenderscan/pncp-aggregator/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Setup(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL, logging.NewLogger("store"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ensure schema")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	ftch := fetcher.New(fetcher.Config{
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MinInterval:    cfg.MinRequestInterval,
		UserAgent:      cfg.UserAgent,
	}, logging.NewLogger("fetcher"))

	paginator := pagination.New(ftch, pagination.Config{
		BaseURL: cfg.PNCPBaseURL,
		PageCap: cfg.PageCap,
	}, logging.NewLogger("pagination"))

	agg := aggregator.New(paginator, aggregator.Config{
		MaxConcurrency: cfg.MaxConcurrency,
	}, logging.NewLogger("aggregator"))

	fresh := freshness.NewPolicy(redisClient, cfg.StalenessWindow, logging.NewLogger("freshness"))

	svc := query.New(agg, st, fresh, query.Config{
		PageSize:         cfg.PageSize,
		LookbackDays:     cfg.LookbackDays,
		UpstreamPageSize: cfg.UpstreamPageSize,
	}, logging.NewLogger("query"))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/v1/notices", noticesHandler(svc, cfg.QueryTimeout))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("Starting aggregator server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown incomplete")
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
