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

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/aging"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/app"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/ingest"
	ingesthttp "github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/ingest/http"
	jobmetrics "github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/jobs"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/observability"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/cache"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/db"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/reconcile"
	reconcilehttp "github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/reconcile/http"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/jobs"
)

const reapInterval = 10 * time.Minute

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, aging cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	policy, err := aging.ParsePolicy(cfg.AgingDefaultBasis)
	if err != nil {
		logger.Error("aging basis", slog.Any("error", err))
		os.Exit(1)
	}
	agingCache := reconcile.NewCache(redisClient, cfg.AgingCacheTTL)
	agingService := reconcile.NewService(reconcile.NewRepository(pool), agingCache, logger, policy)

	ingestRepo := ingest.NewRepository(pool)
	files := ingest.NewDirStore(cfg.UploadDir)

	g, gctx := errgroup.WithContext(ctx)

	var dispatcher ingest.Dispatcher
	switch cfg.IngestMode {
	case app.IngestModeInline:
		pipeline := ingest.NewPipeline(ingestRepo, ingestRepo, logger, jobMetrics, ingest.PipelineConfig{
			BatchSize:    cfg.IngestBatchSize,
			BatchTimeout: cfg.IngestBatchTimeout,
		})
		processor := ingest.NewProcessor(ingestRepo, files, pipeline, agingCache, logger)
		inline := ingest.NewInlineDispatcher(gctx, processor, logger)
		defer inline.Wait()
		dispatcher = inline
		g.Go(func() error {
			return reapLoop(gctx, processor, cfg.IngestStaleAfter, logger)
		})
	default:
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		dispatcher = ingest.NewQueueDispatcher(client)
	}

	uploadService := ingest.NewService(ingest.ServiceConfig{
		Jobs:       ingestRepo,
		Files:      files,
		Dispatcher: dispatcher,
		Logger:     logger,
		MaxBytes:   cfg.UploadMaxBytes,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AgingHandler:  reconcilehttp.NewHandler(logger, agingService),
		UploadHandler: ingesthttp.NewHandler(logger, uploadService),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("ingest_mode", cfg.IngestMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("dashboard exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// reapLoop fails stalled jobs when no worker scheduler is running.
func reapLoop(ctx context.Context, processor *ingest.Processor, staleAfter time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := processor.Reap(ctx, staleAfter)
			if err != nil {
				logger.Warn("reap stalled uploads", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Info("reaped stalled uploads", slog.Int64("count", n))
			}
		}
	}
}
