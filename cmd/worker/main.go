package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/emoteclip/internal/config"
	"github.com/hszk-dev/emoteclip/internal/domain/repository"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/cache"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/postgres"
	"github.com/hszk-dev/emoteclip/internal/infrastructure/queue"
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

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Worker.TempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")
	prometheus.MustRegister(pgClient.Collector())

	clipStore, err := storage.NewClipStore(ctx, storage.Config{
		Endpoint:     cfg.MinIO.Endpoint,
		AccessKey:    cfg.MinIO.AccessKey,
		SecretKey:    cfg.MinIO.SecretKey,
		Bucket:       cfg.MinIO.Bucket,
		UseSSL:       cfg.MinIO.UseSSL,
		CreateBucket: cfg.MinIO.CreateBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	queueCfg.MaxRetries = cfg.Worker.MaxRetries
	queueClient, err := queue.NewClient(ctx, queueCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// Redis is only used to invalidate cached conversion records
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

	runner := &taskRunner{
		clips: usecase.NewClipService(
			postgres.NewConversionRepository(pgClient.Pool()),
			clipStore,
			source.NewDownloader(cfg.SevenTV.Timeout, cfg.SevenTV.MaxDownload),
			tc,
			cache.NewRedisConversionCache(redisClient),
			usecase.ClipServiceConfig{
				TempDir:    cfg.Worker.TempDir,
				MaxRetries: cfg.Worker.MaxRetries,
			},
		),
		timeout: cfg.Worker.TaskTimeout,
		logger:  logger,
	}

	metricsSrv := serveMetrics(cfg.Worker.MetricsPort, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming conversion tasks")
		if err := queueClient.ConsumeConversionTasks(ctx, runner.handle); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop consuming; tasks interrupted by the cancellation are requeued.
	cancel()

	if runner.drain(shutdownCtx) {
		logger.Info("all in-flight tasks completed")
	} else {
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("worker stopped")
	return nil
}

// taskRunner processes conversion tasks and tracks the ones in flight.
type taskRunner struct {
	clips   usecase.ClipService
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func (r *taskRunner) handle(ctx context.Context, task repository.ConversionTask) error {
	r.wg.Add(1)
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log := r.logger.With(
		slog.String("conversion_id", task.ConversionID.String()),
		slog.Int("retry_count", task.RetryCount),
	)
	log.Info("processing task")

	if err := r.clips.ProcessTask(ctx, task); err != nil {
		log.Error("task processing failed", slog.String("error", err.Error()))
		return err
	}
	log.Info("task completed")
	return nil
}

// drain waits for in-flight tasks and reports whether they all finished
// before ctx expired.
func (r *taskRunner) drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func serveMetrics(port int, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", slog.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	return srv
}
