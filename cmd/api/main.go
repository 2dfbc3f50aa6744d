package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/emoteclip/internal/api/handler"
	"github.com/hszk-dev/emoteclip/internal/api/middleware"
	"github.com/hszk-dev/emoteclip/internal/config"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/cache"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/postgres"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/queue"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/seventv"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/storage"
	"github.com/hszk-dev/emoteclip/internal/source"
	"github.com/hszk-dev/emoteclip/internal/transcoder"
	"github.com/hszk-dev/emoteclip/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type handlers struct {
	health     *handler.HealthHandler
	stream     *handler.StreamHandler
	emote      *handler.EmoteHandler
	conversion *handler.ConversionHandler
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	if cfg.Database.Migrate {
		if err := pgClient.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}
	prometheus.MustRegister(pgClient.Collector())

	clipStore, err := storage.NewClipStore(ctx, storage.Config{
		Endpoint:       cfg.MinIO.Endpoint,
		PublicEndpoint: cfg.MinIO.PublicEndpoint,
		AccessKey:      cfg.MinIO.AccessKey,
		SecretKey:      cfg.MinIO.SecretKey,
		Bucket:         cfg.MinIO.Bucket,
		UseSSL:         cfg.MinIO.UseSSL,
		CreateBucket:   cfg.MinIO.CreateBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	tc := transcoder.NewFFmpegTranscoder(cfg.FFmpeg.Transcoder(), logger)
	seventvClient := seventv.NewClient(cfg.SevenTV.GQLURL, cfg.SevenTV.Timeout)
	downloader := source.NewDownloader(cfg.SevenTV.Timeout, cfg.SevenTV.MaxDownload)

	// Initialize services
	searchSvc := usecase.NewSearchService(
		seventvClient,
		cache.NewRedisSearchCache(redisClient),
		usecase.SearchServiceConfig{
			CacheTTL:    cfg.Search.CacheTTL,
			TrendingTTL: cfg.Search.TrendingTTL,
		},
	)
	streamSvc := usecase.NewStreamService(tc, cfg.SevenTV.AllowedHosts)
	conversionSvc := usecase.NewCachedConversionService(
		usecase.NewConversionService(
			postgres.NewConversionRepository(pgClient.Pool()),
			clipStore,
			queueClient,
			usecase.ConversionServiceConfig{
				AllowedHosts:   cfg.SevenTV.AllowedHosts,
				DownloadExpiry: cfg.Server.PresignExpiry,
			},
		),
		cache.NewRedisConversionCache(redisClient),
		usecase.CachedConversionServiceConfig{CacheTTL: cfg.Redis.ConversionTTL},
	)

	h := handlers{
		health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": pgClient,
			"minio":    clipStore,
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
			"rabbitmq": handler.PingFunc(func(context.Context) error {
				if !queueClient.Healthy() {
					return errors.New("connection closed")
				}
				return nil
			}),
		}),
		stream:     handler.NewStreamHandler(streamSvc, cfg.Server.ConvertTimeout),
		emote:      handler.NewEmoteHandler(searchSvc, downloader, cfg.SevenTV.AllowedHosts),
		conversion: handler.NewConversionHandler(conversionSvc),
	}

	r := setupRouter(logger, cfg.RateLimit, h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(logger *slog.Logger, rl config.RateLimitConfig, h handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", h.health.Health)
	r.Handle("/metrics", promhttp.Handler())

	limit := func(next http.Handler) http.Handler { return next }
	if rl.ConvertPerMinute > 0 {
		limit = middleware.ConvertRateLimit(rl.ConvertPerMinute)
	}

	r.Route("/convert", func(r chi.Router) {
		r.Use(limit)
		r.Get("/stream", h.stream.Stream)
		r.Post("/stream", h.stream.Stream)
		r.Get("/download", h.stream.Download)
		r.Post("/download", h.stream.Download)
	})

	r.Get("/download-image", h.emote.DownloadImage)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/emotes/search", h.emote.Search)
		r.Get("/emotes/trending", h.emote.Trending)
		r.With(limit).Post("/conversions", h.conversion.Create)
		r.Get("/conversions/{id}", h.conversion.Get)
		r.Get("/conversions/{id}/clip", h.conversion.Clip)
	})

	return r
}
