package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/app"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/ingest"
	jobmetrics "github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/jobs"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/observability"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/db"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/reconcile"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConn})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	ingestRepo := ingest.NewRepository(pool)
	pipeline := ingest.NewPipeline(ingestRepo, ingestRepo, logger, jobMetrics, ingest.PipelineConfig{
		BatchSize:    cfg.IngestBatchSize,
		BatchTimeout: cfg.IngestBatchTimeout,
	})
	agingCache := reconcile.NewCache(redisClient, cfg.AgingCacheTTL)
	processor := ingest.NewProcessor(ingestRepo, ingest.NewDirStore(cfg.UploadDir), pipeline, agingCache, logger)
	ingestJob := ingest.NewIngestJob(processor, logger)

	reapTask, err := jobs.NewUploadReapTask(cfg.IngestStaleAfter)
	if err != nil {
		logger.Error("build reap task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskUploadIngest, Handler: ingestJob.Handle},
			{Type: jobs.TaskUploadReap, Handler: ingestJob.HandleReap},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 10m", Task: reapTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
